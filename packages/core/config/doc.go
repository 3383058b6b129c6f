// Package config loads capfetch settings from .capfetch.yaml.
//
// Durations are stored in milliseconds. Boolean and X-Forwarded-For settings
// are pointers so an explicit false or empty value in a file can be told
// apart from "not set" when merging.
package config
