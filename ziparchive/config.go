/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package ziparchive

import (
	"strings"

	"github.com/spf13/viper"

	liberr "github.com/nabbar/parazip/errors"
)

// CompressConfig is the viper-bindable wire form of CompressOptions.
// Field names follow the teacher's mapstructure-tag convention
// (lower_snake, matching the keys a YAML/env config source would use).
type CompressConfig struct {
	Roots        []string `mapstructure:"roots"`
	EntryBase    string   `mapstructure:"entry_base"`
	Level        int      `mapstructure:"level"`
	Password     string   `mapstructure:"password"`
	SkipTopLevel bool     `mapstructure:"skip_top_level"`
	ThreadCount  int      `mapstructure:"thread_count"`
	MaxBlockSize int64    `mapstructure:"max_block_size"`
	MaxMemory    int64    `mapstructure:"max_memory"`
}

// ToOptions converts the bound config into engine-facing CompressOptions.
func (c CompressConfig) ToOptions() CompressOptions {
	return CompressOptions{
		Roots:        c.Roots,
		EntryBase:    normalizeBase(c.EntryBase),
		Level:        c.Level,
		Password:     c.Password,
		SkipTopLevel: c.SkipTopLevel,
		ThreadCount:  c.ThreadCount,
		MaxBlockSize: c.MaxBlockSize,
		MaxMemory:    c.MaxMemory,
	}
}

// ExtractConfig is the viper-bindable wire form of ExtractOptions.
type ExtractConfig struct {
	ArchivePath string `mapstructure:"archive_path"`
	DestDir     string `mapstructure:"dest_dir"`
	Password    string `mapstructure:"password"`
	ThreadCount int    `mapstructure:"thread_count"`
}

func (c ExtractConfig) ToOptions() ExtractOptions {
	return ExtractOptions{
		ArchivePath: c.ArchivePath,
		DestDir:     c.DestDir,
		Password:    c.Password,
		ThreadCount: c.ThreadCount,
	}
}

// LoadCompressConfig binds a CompressConfig out of an already-configured
// viper instance (file/env/flags wiring is the caller's concern, matching
// how the teacher's config packages only ever Unmarshal a sub-tree).
func LoadCompressConfig(v *viper.Viper, key string) (CompressConfig, liberr.Error) {
	var cfg CompressConfig
	sub := v
	if key != "" {
		sub = v.Sub(key)
		if sub == nil {
			return cfg, ErrorInvalidArgument.Error(nil)
		}
	}
	if err := sub.Unmarshal(&cfg); err != nil {
		return cfg, ErrorInvalidArgument.ErrorParent(err)
	}
	return cfg, nil
}

// LoadExtractConfig mirrors LoadCompressConfig for the extract side.
func LoadExtractConfig(v *viper.Viper, key string) (ExtractConfig, liberr.Error) {
	var cfg ExtractConfig
	sub := v
	if key != "" {
		sub = v.Sub(key)
		if sub == nil {
			return cfg, ErrorInvalidArgument.Error(nil)
		}
	}
	if err := sub.Unmarshal(&cfg); err != nil {
		return cfg, ErrorInvalidArgument.ErrorParent(err)
	}
	return cfg, nil
}

// normalizeBase ensures a non-empty entry_base always ends in '/', the
// shape validateEntryBase requires.
func normalizeBase(base string) string {
	if base == "" || strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
