package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAPIQuota_Exhausted(t *testing.T) {
	now := time.Now()

	assert.False(t, APIQuota{}.Exhausted(now))
	assert.False(t, APIQuota{Limit: 60, Remaining: 1, Reset: now.Add(time.Hour)}.Exhausted(now))
	assert.True(t, APIQuota{Limit: 60, Remaining: 0, Reset: now.Add(time.Hour)}.Exhausted(now))
	assert.False(t, APIQuota{Limit: 60, Remaining: 0, Reset: now.Add(-time.Second)}.Exhausted(now))
}
