package types

import (
	"encoding/json"

	"github.com/juju/errors"
	"github.com/spf13/cast"

	"github.com/warriorguo/checkpoint/utils"
)

type Data map[string]any

func (d Data) Get(key string) (any, bool) {
	v, exists := d[key]
	return v, exists
}

func (d Data) GetString(key string) (string, bool) {
	v, exists := d.Get(key)
	return cast.ToString(v), exists
}

func (d Data) GetInt(key string) (int, bool) {
	v, exists := d.Get(key)
	return cast.ToInt(v), exists
}

func (d Data) GetInt64(key string) (int64, bool) {
	v, exists := d.Get(key)
	return cast.ToInt64(v), exists
}

func (d Data) GetBool(key string) (bool, bool) {
	v, exists := d.Get(key)
	return cast.ToBool(v), exists
}

func (d Data) GetFloat64(key string) (float64, bool) {
	v, exists := d.Get(key)
	return cast.ToFloat64(v), exists
}

/**
 * GetData returns a nested record stored under key.
 * Values decoded from JSON arrive as map[string]any; values set in
 * process may already be Data.
 */
func (d Data) GetData(key string) (Data, bool) {
	v, exists := d.Get(key)
	if !exists {
		return Data{}, false
	}
	switch m := v.(type) {
	case Data:
		return m, true
	case map[string]any:
		return Data(m), true
	}
	return Data{}, false
}

func (d Data) GetStruct(key string, s any) error {
	v, exists := d.Get(key)
	if !exists {
		return errors.NotFound
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.New("marshal failed"))
	}
	return json.Unmarshal(b, s)
}

func (d *Data) Set(key string, value any) {
	(*d)[key] = value
}

/**
 * Clone returns a shallow copy. The engine snapshots caller data on
 * Ensure so later mutation of the caller's map can not leak into a
 * stored event.
 */
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return utils.CloneMap(d)
}
