// Package container 负责外部资源的装配与有序关闭
package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"yfollow/internal/application/port"
	"yfollow/internal/infrastructure/config"
	"yfollow/internal/infrastructure/storage"
	"yfollow/internal/infrastructure/storage/composite"
	pgrepo "yfollow/internal/infrastructure/storage/postgres"
	redisrepo "yfollow/internal/infrastructure/storage/redis"
	sqliterepo "yfollow/internal/infrastructure/storage/sqlite"
)

// Container 持有全部外部资源依赖
type Container struct {
	cfg         *config.Config
	redisClient *redis.Client
	repos       []port.Repository
	closeOnce   sync.Once
	closerChain []func() error
}

// New 按配置装配存储层。任一后端初始化失败时
// 回收已建立的连接并整体失败。
func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}

	if cfg.Storage.Enabled {
		if err := c.initStorage(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	return c, nil
}

func (c *Container) initStorage() error {
	if c.cfg.Storage.Redis.Enabled {
		if err := c.initRedis(); err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
	}

	if c.cfg.Storage.SQLite.Enabled {
		if err := c.initSQLite(); err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
	}

	if c.cfg.Storage.Postgres.Enabled {
		if err := c.initPostgres(); err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
	}

	return nil
}

func (c *Container) initRedis() error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Storage.Redis.Addr,
		Password: c.cfg.Storage.Redis.Password,
		DB:       c.cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	ttl := time.Duration(c.cfg.Storage.Redis.TTLSeconds) * time.Second

	repo := redisrepo.New(
		rdb,
		c.cfg.Storage.Redis.Prefix,
		ttl,
		c.cfg.Storage.Redis.EventStream,
		c.cfg.Storage.Redis.EventChannel,
	)
	c.repos = append(c.repos, repo)

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", c.cfg.Storage.Redis.Addr).
		Int("db", c.cfg.Storage.Redis.DB).
		Msg("redis initialized")

	return nil
}

func (c *Container) initSQLite() error {
	repo, err := sqliterepo.New(c.cfg.Storage.SQLite.Path)
	if err != nil {
		return err
	}

	c.repos = append(c.repos, repo)
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing sqlite connection")
		return repo.Close()
	})

	log.Info().
		Str("path", c.cfg.Storage.SQLite.Path).
		Msg("sqlite initialized")

	return nil
}

func (c *Container) initPostgres() error {
	repo, err := pgrepo.New(c.cfg.Storage.Postgres.DSN)
	if err != nil {
		return err
	}

	c.repos = append(c.repos, repo)
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing postgres connection")
		return repo.Close()
	})

	log.Info().Msg("postgres initialized")

	return nil
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

// RedisClient 获取 Redis 客户端
func (c *Container) RedisClient() *redis.Client {
	return c.redisClient
}

// Repository 返回聚合后的存储仓储。
// 未启用任何后端时返回空实现，调用方无需判空。
func (c *Container) Repository() port.Repository {
	switch len(c.repos) {
	case 0:
		return storage.Nop{}
	case 1:
		return c.repos[0]
	default:
		return composite.New(c.repos...)
	}
}

// Close 按后进先出顺序关闭所有资源
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
