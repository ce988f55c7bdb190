package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
)

func TestGetHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:key")).
		Return(mock.Result(mock.RedisBlobString("value")))

	s := newStore(c, "emb:", 0)
	data, ok, err := s.Get(context.Background(), "key")
	if err != nil || !ok || string(data) != "value" {
		t.Fatalf("Get() = %q, %v, %v", data, ok, err)
	}
}

func TestGetMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "emb:key")).
		Return(mock.Result(mock.RedisNil()))

	s := newStore(c, "emb:", 0)
	_, ok, err := s.Get(context.Background(), "key")
	if err != nil || ok {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestGetError(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("GET", "key")).
		Return(mock.ErrorResult(errors.New("connection reset")))

	if _, _, err := newStore(c, "", 0).Get(context.Background(), "key"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSetWithTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "emb:key", "value", "EX", "3600")).
		Return(mock.Result(mock.RedisString("OK")))

	s := newStore(c, "emb:", time.Hour)
	if err := s.Set(context.Background(), "key", []byte("value")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}

func TestSetWithoutTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)
	c.EXPECT().
		Do(gomock.Any(), mock.Match("SET", "key", "value")).
		Return(mock.Result(mock.RedisString("OK")))

	if err := newStore(c, "", 0).Set(context.Background(), "key", []byte("value")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
}
