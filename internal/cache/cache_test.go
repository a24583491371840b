package cache

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestKey_StripsServiceKey(t *testing.T) {
	withKey := url.Values{"pageNo": {"1"}, "serviceKey": {"secret-a"}}
	otherKey := url.Values{"pageNo": {"1"}, "serviceKey": {"secret-b"}}

	a := Key("weather", "/getUltraSrtNcst", withKey, "serviceKey")
	b := Key("weather", "/getUltraSrtNcst", otherKey, "serviceKey")
	if a != b {
		t.Error("cache key must not depend on the portal service key")
	}
}

func TestKey_VariesByQueryPathAndEndpoint(t *testing.T) {
	base := Key("weather", "/getUltraSrtNcst", url.Values{"pageNo": {"1"}}, "serviceKey")

	if got := Key("weather", "/getUltraSrtNcst", url.Values{"pageNo": {"2"}}, "serviceKey"); got == base {
		t.Error("different query must yield different key")
	}
	if got := Key("weather", "/getVilageFcst", url.Values{"pageNo": {"1"}}, "serviceKey"); got == base {
		t.Error("different path must yield different key")
	}
	if got := Key("air-quality", "/getUltraSrtNcst", url.Values{"pageNo": {"1"}}, "serviceKey"); got == base {
		t.Error("different endpoint must yield different key")
	}
	if !strings.HasPrefix(base, "kdata:cache:weather:") {
		t.Errorf("unexpected key shape: %s", base)
	}
}

func TestCache_NilRedisDisabled(t *testing.T) {
	c := New(nil)
	key := Key("weather", "/x", url.Values{}, "serviceKey")

	if entry := c.Get(context.Background(), key); entry != nil {
		t.Error("nil-Redis cache must always miss")
	}
	// Set must be a silent no-op.
	c.Set(context.Background(), key, &Entry{StatusCode: 200}, time.Minute)
}
