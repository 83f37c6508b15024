package config

import (
	kcfg "granary/source/kafka"
	pgcfg "granary/store/postgres"
)

// LoadKafkaConfig delegates to the Kafka source loader while centralizing
// loader entrypoints under internal/config.
func LoadKafkaConfig(path string) (kcfg.Config, error) {
	return kcfg.LoadConfig(path)
}

// LoadStoreConfig delegates to the postgres store loader.
func LoadStoreConfig(path string) (pgcfg.Config, error) {
	return pgcfg.LoadConfig(path)
}
