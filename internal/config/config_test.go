package config

import "testing"

func TestLoadWriterConfigDefaults(t *testing.T) {
	wc, err := LoadWriterConfig()
	if err != nil {
		t.Fatalf("LoadWriterConfig: %v", err)
	}
	if wc.NodeID == "" {
		t.Fatal("expected a default node id")
	}
	if wc.Topic != "_schemas" {
		t.Fatalf("expected default topic _schemas, got %q", wc.Topic)
	}
	if wc.RetryBudget != 5 {
		t.Fatalf("expected default retry budget 5, got %d", wc.RetryBudget)
	}
	if wc.Shards <= 0 {
		t.Fatalf("expected a positive default shard count, got %d", wc.Shards)
	}
	if wc.StatusPort != 8080 {
		t.Fatalf("expected default status port 8080, got %d", wc.StatusPort)
	}
}

func TestRegistryKafkaField(t *testing.T) {
	AppConfig.Registries = []Registry{
		{
			Name: "prod",
			URL:  "http://localhost:8081",
			Kafka: KafkaConfig{
				Brokers: []string{"broker1:9092", "broker2:9092"},
				SASL:    SASLConfig{Mechanism: "PLAIN", Username: "u", Password: "p"},
				TLS:     TLSConfig{Enabled: true},
			},
		},
	}

	reg := GetRegistry("prod")
	if reg == nil {
		t.Fatal("expected registry 'prod' to be found")
	}
	if len(reg.Kafka.Brokers) != 2 {
		t.Fatalf("expected 2 brokers, got %d", len(reg.Kafka.Brokers))
	}
	if reg.Kafka.SASL.Mechanism != "PLAIN" {
		t.Fatalf("unexpected SASL mechanism: %q", reg.Kafka.SASL.Mechanism)
	}
	if !reg.Kafka.TLS.Enabled {
		t.Fatal("expected TLS enabled")
	}
}
