package main

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

type fakeClient struct {
	partitions []int32
	oldest     int64
	newest     int64
}

func (f *fakeClient) GetOffset(_ string, _ int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return f.oldest, nil
	}
	return f.newest, nil
}

func (f *fakeClient) Partitions(string) ([]int32, error) { return f.partitions, nil }
func (f *fakeClient) Close() error                       { return nil }

type fakePartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (f *fakePartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return f.messages }
func (f *fakePartitionConsumer) Errors() <-chan *sarama.ConsumerError { return f.errors }
func (f *fakePartitionConsumer) Close() error                            { return nil }

type fakeConsumerSource struct {
	pc *fakePartitionConsumer
}

func (f *fakeConsumerSource) ConsumePartition(string, int32, int64) (partitionConsumer, error) {
	return f.pc, nil
}
func (f *fakeConsumerSource) Close() error { return nil }

type fakeProducer struct {
	sent []*sarama.ProducerMessage
}

func (f *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	f.sent = append(f.sent, msg)
	return 0, int64(len(f.sent)), nil
}
func (f *fakeProducer) Close() error { return nil }

func dlqMessage(offset int64, value string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:     "fos.dlq",
		Partition: 0,
		Offset:    offset,
		Key:       []byte("4100001"),
		Value:     []byte(value),
	}
}

func TestExtractReplayMessage(t *testing.T) {
	msg := dlqMessage(1, `{"original_topic":"fos.change.feed","original_key":"4100001","original_value":"{\"table_name\":\"tbl_Shipper\"}"}`)

	replay, ok := extractReplayMessage(msg, "fallback-topic")
	if !ok {
		t.Fatal("expected replayable message")
	}
	if replay.topic != "fos.change.feed" || replay.key != "4100001" {
		t.Fatalf("unexpected replay message: %+v", replay)
	}

	// Без original_topic подставляется топик по умолчанию.
	noTopic := dlqMessage(2, `{"original_key":"k","original_value":"v"}`)
	replay, ok = extractReplayMessage(noTopic, "fallback-topic")
	if !ok || replay.topic != "fallback-topic" {
		t.Fatalf("expected fallback topic, got %+v ok=%v", replay, ok)
	}

	if _, ok := extractReplayMessage(dlqMessage(3, `not json`), "fallback"); ok {
		t.Fatal("malformed payload must be skipped")
	}
	if _, ok := extractReplayMessage(dlqMessage(4, `{"original_key":"k"}`), "fallback"); ok {
		t.Fatal("payload without original_value must be skipped")
	}
}

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 || brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}
	if got := parseBrokers(""); len(got) != 0 {
		t.Fatalf("expected no brokers, got %v", got)
	}
}

func TestRunReplay_Execute(t *testing.T) {
	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, 3),
		errors:   make(chan *sarama.ConsumerError),
	}
	pc.messages <- dlqMessage(0, `{"original_topic":"fos.change.feed","original_key":"4100001","original_value":"{}"}`)
	pc.messages <- dlqMessage(1, `broken payload`)
	close(pc.messages)

	client := &fakeClient{partitions: []int32{0}, oldest: 0, newest: 2}
	producer := &fakeProducer{}
	cfg := config{
		sourceTopic: "fos.dlq",
		targetTopic: "fos.change.feed",
		limit:       10,
		execute:     true,
		idleTimeout: 100 * time.Millisecond,
	}

	if err := runReplay(context.Background(), cfg, client, &fakeConsumerSource{pc: pc}, producer); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if len(producer.sent) != 1 {
		t.Fatalf("expected 1 replayed message, got %d", len(producer.sent))
	}
	if producer.sent[0].Topic != "fos.change.feed" {
		t.Fatalf("unexpected target topic: %s", producer.sent[0].Topic)
	}
}

func TestRunReplay_DryRunNeedsNoProducer(t *testing.T) {
	pc := &fakePartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, 1),
		errors:   make(chan *sarama.ConsumerError),
	}
	pc.messages <- dlqMessage(0, `{"original_key":"k","original_value":"v"}`)
	close(pc.messages)

	client := &fakeClient{partitions: []int32{0}, oldest: 0, newest: 1}
	cfg := config{
		sourceTopic: "fos.dlq",
		targetTopic: "fos.change.feed",
		limit:       10,
		idleTimeout: 100 * time.Millisecond,
	}

	if err := runReplay(context.Background(), cfg, client, &fakeConsumerSource{pc: pc}, nil); err != nil {
		t.Fatalf("dry-run failed: %v", err)
	}
}

func TestRunReplay_ExecuteRequiresProducer(t *testing.T) {
	client := &fakeClient{partitions: []int32{0}}
	cfg := config{sourceTopic: "fos.dlq", targetTopic: "t", limit: 1, execute: true, idleTimeout: time.Millisecond}

	if err := runReplay(context.Background(), cfg, client, &fakeConsumerSource{}, nil); err == nil {
		t.Fatal("expected error without producer in execute mode")
	}
}
