// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package papi

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrnoKinds(t *testing.T) {
	codes := Errnos()
	require.Len(t, codes, 26)
	seen := map[Kind]Errno{}
	for _, c := range codes {
		k := c.Kind()
		if prev, ok := seen[k]; ok && k != Miscellaneous {
			t.Errorf("%s and %s both map to %s", prev.Name(), c.Name(), k)
		}
		seen[k] = c
	}
	assert.Equal(t, InvalidValue, EINVAL.Kind())
	assert.Equal(t, NotRunning, ENOTRUN.Kind())
	assert.Equal(t, AlreadyRunning, EISRUN.Kind())
	assert.Equal(t, ResourceConflict, ECNFLCT.Kind())
	assert.Equal(t, Miscellaneous, EMISC.Kind())
	assert.Equal(t, DelayedInitFailure, EDELAYINIT.Kind())
	assert.Equal(t, Miscellaneous, Errno(-99).Kind())
}

func TestStrerror(t *testing.T) {
	msgs := map[string]Errno{}
	for _, c := range Errnos() {
		msg := Strerror(c)
		assert.NotEmpty(t, msg, c.Name())
		if prev, ok := msgs[msg]; ok {
			t.Errorf("%s and %s share message %q", prev.Name(), c.Name(), msg)
		}
		msgs[msg] = c
	}
	assert.Equal(t, "No error", Strerror(OK))
	for _, c := range []Errno{-27, -1000, 42} {
		msg := Strerror(c)
		assert.True(t, strings.Contains(msg, fmt.Sprint(int32(c))), msg)
	}
}

func TestErrnoNames(t *testing.T) {
	assert.Equal(t, "ENOTRUN", ENOTRUN.Name())
	assert.Equal(t, "EINVAL_DOM", EINVALDOM.Name())
	assert.Equal(t, "ECMP_DISABLED", ECMPDISABLED.Name())
	assert.Equal(t, "EDELAY_INIT", EDELAYINIT.Name())
	assert.Equal(t, "E-99", Errno(-99).Name())
}

func TestErrorMatching(t *testing.T) {
	err := error(newError("read", ENOTRUN, ""))
	wrapped := fmt.Errorf("sampling: %w", err)

	assert.ErrorIs(t, wrapped, ENOTRUN)
	assert.NotErrorIs(t, wrapped, EISRUN)
	assert.ErrorIs(t, wrapped, &Error{Kind: NotRunning})
	assert.NotErrorIs(t, wrapped, &Error{Kind: AlreadyRunning})

	var pe *Error
	require.True(t, errors.As(wrapped, &pe))
	assert.Equal(t, "read", pe.Op)
	assert.Equal(t, "papi: read: "+Strerror(ENOTRUN), pe.Error())

	k, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, NotRunning, k)
	assert.True(t, IsKind(ECNFLCT, ResourceConflict))
	_, ok = KindOf(errors.New("other"))
	assert.False(t, ok)
}

func TestErrorSubsystemMessage(t *testing.T) {
	err := newError("start", EISRUN, "busy")
	assert.Equal(t, "papi: start: busy", err.Error())
	assert.Equal(t, AlreadyRunning, err.Kind)
}

func TestBound(t *testing.T) {
	for _, tc := range []struct {
		in   string
		n    int
		want string
	}{
		{"short", 8, "short"},
		{"12345678", 8, "1234567"},
		{"1234567", 8, "1234567"},
		{"aé", 3, "a"},         // é is 2 bytes; cut at 2 splits it
		{"a世界", 5, "a世"},      // 1+3+3 bytes, cut to 4
		{"a世界", 6, "a世"},      // cut to 5 splits 界
		{"abc世", 4, "abc"},     // cut to 3
		{strings.Repeat("é", 100), MaxStrLen, strings.Repeat("é", 63)},
	} {
		got := bound(tc.in, tc.n)
		assert.Equal(t, tc.want, got, "bound(%q, %d)", tc.in, tc.n)
		assert.Less(t, len(got), tc.n)
	}
}
