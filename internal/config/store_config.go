package config

import (
	"strings"
	"time"
)

const (
	storeTypeVar      = "SESSION_STORE"
	dataFolderVar     = "DATA_FOLDER"
	passphraseVar     = "SESSION_PASSPHRASE"
	redisAddrVar      = "REDIS_ADDR"
	redisPasswordVar  = "REDIS_PASSWORD"
	redisDBVar        = "REDIS_DB"
	redisPrefixVar    = "REDIS_PREFIX"
	storeRetentionVar = "STORE_RETENTION"
)

type StoreType string

const (
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeMemory StoreType = "memory"
)

type StoreConfig interface {
	GetStoreType() StoreType
	GetDataFolder() string
	GetSessionPassphrase() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
	GetStoreRetention() time.Duration
}

type Store struct {
	source
}

var _ StoreConfig = Store{}

func (s Store) GetStoreType() StoreType {
	return StoreType(strings.ToLower(s.v.GetString(storeTypeVar)))
}

func (s Store) GetDataFolder() string {
	return s.v.GetString(dataFolderVar)
}

// GetSessionPassphrase returns the passphrase used to seal persisted sessions. Empty disables sealing.
func (s Store) GetSessionPassphrase() string {
	return s.v.GetString(passphraseVar)
}

func (s Store) GetRedisAddr() string {
	return s.v.GetString(redisAddrVar)
}

func (s Store) GetRedisPassword() string {
	return s.v.GetString(redisPasswordVar)
}

func (s Store) GetRedisDB() int {
	return s.v.GetInt(redisDBVar)
}

func (s Store) GetRedisPrefix() string {
	return s.v.GetString(redisPrefixVar)
}

// GetStoreRetention is the TTL of the in-memory store entry. Zero keeps it forever.
func (s Store) GetStoreRetention() time.Duration {
	return s.v.GetDuration(storeRetentionVar)
}
