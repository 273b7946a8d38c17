package octopus

import (
	"context"

	"github.com/octopusdb/octopusdb/pkg/command"
)

// Set stores key=value as a string, cancelling any existing TTL, and
// returns "OK" (spec.md §4.E).
func (o *Octopus) Set(ctx context.Context, key, value string) (string, error) {
	res, err := o.run(ctx, command.Command{Kind: command.Set, Key: key, Value: value})
	if err != nil {
		return "", err
	}
	o.emit("set", key, value)
	return res.String, nil
}

// Get returns key's string value, or (ok=false) if missing or expired.
func (o *Octopus) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	res, err := o.run(ctx, command.Command{Kind: command.Get, Key: key})
	if err != nil {
		return "", false, err
	}
	if res.StringIsNull {
		return "", false, nil
	}
	o.emit("get", key, res.String)
	return res.String, true, nil
}

// Del removes key, returning 1 if it was present else 0.
func (o *Octopus) Del(ctx context.Context, key string) (int64, error) {
	res, err := o.run(ctx, command.Command{Kind: command.Del, Key: key})
	if err != nil {
		return 0, err
	}
	o.emit("del", key, "")
	return res.Int, nil
}

// Exists reports whether key is present (and unexpired): 1 or 0.
func (o *Octopus) Exists(ctx context.Context, key string) (int64, error) {
	res, err := o.run(ctx, command.Command{Kind: command.Exists, Key: key})
	if err != nil {
		return 0, err
	}
	o.emit("exists", key, "")
	return res.Int, nil
}

// Incr increments key's integer counter (creating it at 0 if absent) and
// returns the new value as a string.
func (o *Octopus) Incr(ctx context.Context, key string) (string, error) {
	res, err := o.run(ctx, command.Command{Kind: command.Incr, Key: key})
	if err != nil {
		return "", err
	}
	o.emit("incr", key, res.String)
	return res.String, nil
}

// Decr decrements key's integer counter (creating it at 0 if absent) and
// returns the new value as a string.
func (o *Octopus) Decr(ctx context.Context, key string) (string, error) {
	res, err := o.run(ctx, command.Command{Kind: command.Decr, Key: key})
	if err != nil {
		return "", err
	}
	o.emit("decr", key, res.String)
	return res.String, nil
}

// Expire sets key's TTL to seconds from now, returning 1 if key exists
// else 0.
func (o *Octopus) Expire(ctx context.Context, key string, seconds int64) (int64, error) {
	res, err := o.run(ctx, command.Command{Kind: command.Expire, Key: key, TTLSeconds: seconds})
	if err != nil {
		return 0, err
	}
	o.emit("expire", key, "")
	return res.Int, nil
}

// TTL returns key's remaining seconds, or -1 if it has no expiry.
func (o *Octopus) TTL(ctx context.Context, key string) (int64, error) {
	res, err := o.run(ctx, command.Command{Kind: command.TTL, Key: key})
	if err != nil {
		return 0, err
	}
	o.emit("ttl", key, "")
	return res.Int, nil
}

// Persist cancels key's TTL if any, returning 1 if cancelled else 0.
func (o *Octopus) Persist(ctx context.Context, key string) (int64, error) {
	res, err := o.run(ctx, command.Command{Kind: command.Persist, Key: key})
	if err != nil {
		return 0, err
	}
	o.emit("persist", key, "")
	return res.Int, nil
}

// LPush prepends value to key's list, returning the new length.
func (o *Octopus) LPush(ctx context.Context, key, value string) (int64, error) {
	res, err := o.run(ctx, command.Command{Kind: command.LPush, Key: key, Value: value})
	if err != nil {
		return 0, err
	}
	o.emit("lpush", key, value)
	return res.Int, nil
}

// RPush appends value to key's list, returning the new length.
func (o *Octopus) RPush(ctx context.Context, key, value string) (int64, error) {
	res, err := o.run(ctx, command.Command{Kind: command.RPush, Key: key, Value: value})
	if err != nil {
		return 0, err
	}
	o.emit("rpush", key, value)
	return res.Int, nil
}

// LPop removes and returns key's first element, or ok=false if empty.
func (o *Octopus) LPop(ctx context.Context, key string) (value string, ok bool, err error) {
	res, err := o.run(ctx, command.Command{Kind: command.LPop, Key: key})
	if err != nil {
		return "", false, err
	}
	if res.StringIsNull {
		return "", false, nil
	}
	o.emit("lpop", key, res.String)
	return res.String, true, nil
}

// RPop removes and returns key's last element, or ok=false if empty.
func (o *Octopus) RPop(ctx context.Context, key string) (value string, ok bool, err error) {
	res, err := o.run(ctx, command.Command{Kind: command.RPop, Key: key})
	if err != nil {
		return "", false, err
	}
	if res.StringIsNull {
		return "", false, nil
	}
	o.emit("rpop", key, res.String)
	return res.String, true, nil
}

// SAdd adds value to key's set, returning the new cardinality.
func (o *Octopus) SAdd(ctx context.Context, key, value string) (int64, error) {
	res, err := o.run(ctx, command.Command{Kind: command.SAdd, Key: key, Value: value})
	if err != nil {
		return 0, err
	}
	o.emit("sadd", key, value)
	return res.Int, nil
}

// SRem removes value from key's set, returning 1 if removed else 0.
func (o *Octopus) SRem(ctx context.Context, key, value string) (int64, error) {
	res, err := o.run(ctx, command.Command{Kind: command.SRem, Key: key, Value: value})
	if err != nil {
		return 0, err
	}
	o.emit("srem", key, value)
	return res.Int, nil
}

// SMembers returns key's set members in unspecified order.
func (o *Octopus) SMembers(ctx context.Context, key string) ([]string, error) {
	res, err := o.run(ctx, command.Command{Kind: command.SMembers, Key: key})
	if err != nil {
		return nil, err
	}
	o.emit("smembers", key, "")
	return res.Members, nil
}
