package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/MemberFox/app/models"
	"github.com/ManuelReschke/MemberFox/internal/pkg/cache"
	"github.com/ManuelReschke/MemberFox/internal/pkg/database"
)

const webhookCountersKey = "webhook:counters"

// AddProcessed increments the pending processed counter for a provider in Redis
func AddProcessed(provider string) error {
	return add(provider, models.CounterOutcomeProcessed)
}

// AddDuplicate increments the pending duplicate counter for a provider in Redis
func AddDuplicate(provider string) error {
	return add(provider, models.CounterOutcomeDuplicate)
}

// AddFailed increments the pending failure counter for a provider in Redis
func AddFailed(provider string) error {
	return add(provider, models.CounterOutcomeFailed)
}

func add(provider, outcome string) error {
	ctx := context.Background()
	day := time.Now().UTC().Format("2006-01-02")
	field := fmt.Sprintf("%s|%s|%s", day, provider, outcome)
	return cache.GetClient().HIncrBy(ctx, webhookCountersKey, field, 1).Err()
}

// persistCounters writes one drained batch to the database; replaced in tests.
var persistCounters = func(fields []string, data map[string]string) error {
	values := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)*4)
	for _, field := range fields {
		parts := strings.SplitN(field, "|", 3)
		if len(parts) != 3 {
			continue
		}
		values = append(values, "(?, ?, ?, ?)")
		args = append(args, parts[0], parts[1], parts[2], data[field])
	}
	if len(values) == 0 {
		return nil
	}

	sql := "INSERT INTO event_counters (day, provider, outcome, count) VALUES " +
		strings.Join(values, ", ") +
		" ON DUPLICATE KEY UPDATE count = count + VALUES(count)"
	return database.GetDB().Exec(sql, args...).Error
}

// FlushAll drains the pending webhook counters to the database.
// Uses RENAME to a temporary key for atomic drain without losing in-flight
// increments. A failed database write puts the drained counts back into the
// live hash so the next tick retries them.
func FlushAll() error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", webhookCountersKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", webhookCountersKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return rdb.Del(ctx, tmpKey).Err()
	}

	// Stable field order keeps the batched SQL deterministic.
	fields := make([]string, 0, len(data))
	for field := range data {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	if err := persistCounters(fields, data); err != nil {
		for _, field := range fields {
			if inc, perr := strconv.ParseInt(data[field], 10, 64); perr == nil {
				rdb.HIncrBy(ctx, webhookCountersKey, field, inc)
			}
		}
		rdb.Del(ctx, tmpKey)
		return err
	}
	return rdb.Del(ctx, tmpKey).Err()
}
