package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	redis "github.com/redis/go-redis/v9"

	model "github.com/loyaltyworks/ledger/internal/models"
)

type CacheService struct {
	client *redis.Client
}

func NewCacheService() (serv *CacheService, err error) {

	// config
	addr := os.Getenv("LEDGER_CACHE_URL")
	if addr == "" {
		return nil, fmt.Errorf("env LEDGER_CACHE_URL is not set")
	}
	user := os.Getenv("LEDGER_CACHE_USER")
	pwd := os.Getenv("LEDGER_CACHE_PWD")

	// redis
	db := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    pwd,
		Username:    user,
		DB:          0,
		MaxRetries:  5,
		DialTimeout: 10 * time.Second,
	})
	err = db.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return &CacheService{db}, nil
}

func cacheKey(ref model.AccountRef) string {
	return "balance:" + ref.Customer + ":" + ref.Business + ":" + ref.Program
}

func (c *CacheService) GetBalance(ctx context.Context, ref model.AccountRef) (balance model.Balance, err error) {
	val, err := c.client.Get(ctx, cacheKey(ref)).Result()
	if err == redis.Nil {
		return balance, fmt.Errorf("not found")
	} else if err != nil {
		return balance, err
	}

	err = json.Unmarshal([]byte(val), &balance)
	if err != nil {
		return balance, err
	}
	return balance, nil
}

func (c *CacheService) SetBalance(ctx context.Context, ref model.AccountRef, balance model.Balance) (err error) {
	val, err := json.Marshal(balance)
	if err != nil {
		return err
	}
	err = c.client.Set(ctx, cacheKey(ref), val, 5*time.Minute).Err()
	if err != nil {
		return err
	}
	return nil
}

func (c *CacheService) InvalidateBalance(ctx context.Context, ref model.AccountRef) error {
	err := c.client.Del(ctx, cacheKey(ref)).Err()
	if err != nil {
		return err
	}
	return nil
}
