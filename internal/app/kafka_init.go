package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sonicjewellers/cartsync/internal/messaging/kafka"
)

// initKafkaProducer поднимает producer, когда список брокеров задан.
// Недоступный Kafka не валит сервис: корзина работает, события не уходят.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := splitBrokers(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, cart events disabled")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// splitBrokers режет CARTSYNC_KAFKA_BROKERS по запятым, выбрасывая пустые
// элементы и пробелы вокруг адресов.
func splitBrokers(brokers string) []string {
	var out []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			out = append(out, broker)
		}
	}
	return out
}

func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
