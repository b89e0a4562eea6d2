// Package kafka publishes identity notifications to Kafka with IBM/sarama.
//
// [Publisher] implements identity.NotificationSender. The engine calls it from
// its delivery queue workers, so a slow broker never blocks a request.
package kafka
