package rest

import (
	"context"
	"encoding/json"
	"net/url"
)

const usersPath = "/users"

// userDirectory реализует fallback-поиск пользователя по email/username
// через справочный endpoint backend'а.
type userDirectory struct {
	client *Client
}

// NewUserDirectory создаёт REST-реализацию domain.UserDirectory.
func NewUserDirectory(client *Client) *userDirectory {
	return &userDirectory{client: client}
}

func (d *userDirectory) FindByEmail(ctx context.Context, email string) (int64, bool, error) {
	return d.find(ctx, url.Values{"email": {email}})
}

func (d *userDirectory) FindByUsername(ctx context.Context, username string) (int64, bool, error) {
	return d.find(ctx, url.Values{"username": {username}})
}

// find принимает обе формы ответа: постраничный конверт {results: [...]}
// и голый массив пользователей.
func (d *userDirectory) find(ctx context.Context, query url.Values) (int64, bool, error) {
	var raw json.RawMessage
	if err := d.client.Get(ctx, usersPath, query, &raw); err != nil {
		return 0, false, err
	}

	users := decodeUsers(raw)
	if len(users) == 0 {
		return 0, false, nil
	}
	return users[0].ID, users[0].ID > 0, nil
}

type directoryUser struct {
	ID int64 `json:"id"`
}

func decodeUsers(raw json.RawMessage) []directoryUser {
	var envelope struct {
		Results []directoryUser `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Results != nil {
		return envelope.Results
	}

	var users []directoryUser
	if err := json.Unmarshal(raw, &users); err == nil {
		return users
	}
	return nil
}
