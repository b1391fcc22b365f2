//go:build !nodolt

package store

import _ "github.com/dolthub/driver"
