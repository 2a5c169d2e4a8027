package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/bobg/pullsync/cache"
	"github.com/bobg/pullsync/source"
	"github.com/bobg/pullsync/source/dir"
)

func loadConfig(filename string) (map[string]interface{}, error) {
	var conf map[string]interface{}

	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		if _, err := toml.DecodeFile(filename, &conf); err != nil {
			return nil, errors.Wrapf(err, "decoding config file %s", filename)
		}
		return conf, nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	err = dec.Decode(&conf)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}
	return conf, nil
}

func (c maincmd) section(name string) (map[string]interface{}, error) {
	v, ok := c.conf[name]
	if !ok {
		return nil, nil
	}
	sec, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("config section %q is not a map", name)
	}
	return sec, nil
}

// newCache creates the digest cache described by the config file,
// or returns nil if there is none.
func (c maincmd) newCache(ctx context.Context) (cache.Cache, error) {
	sec, err := c.section("cache")
	if err != nil || sec == nil {
		return nil, err
	}
	typ, ok := sec["type"].(string)
	if !ok {
		return nil, errors.New("cache section missing `type` parameter")
	}
	ch, err := cache.Create(ctx, typ, sec)
	return ch, errors.Wrapf(err, "creating %s-type cache", typ)
}

// newSource creates the inventory provider described by the config file,
// or else a directory provider for root.
func (c maincmd) newSource(ctx context.Context, root string, recursive bool) (source.Source, error) {
	sec, err := c.section("source")
	if err != nil {
		return nil, err
	}
	if sec != nil {
		typ, ok := sec["type"].(string)
		if !ok {
			return nil, errors.New("source section missing `type` parameter")
		}
		if typ == "dir" {
			if _, ok := sec["root"]; !ok {
				sec["root"] = root
			}
		}
		src, err := source.Create(ctx, typ, sec)
		return src, errors.Wrapf(err, "creating %s-type source", typ)
	}

	d, err := c.newDir(ctx, root, recursive)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c maincmd) newDir(ctx context.Context, root string, recursive bool) (*dir.Source, error) {
	opts := []dir.Option{dir.Recursive(recursive)}
	ch, err := c.newCache(ctx)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		opts = append(opts, dir.WithCache(ch))
	}
	return dir.New(root, opts...), nil
}
