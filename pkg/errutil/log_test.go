// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authio Contributors

package errutil_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authio/authio/pkg/errutil"
)

func TestLogError_OopsError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := oops.Code("IDENTITY_SAVE_FAILED").
		With("identity_id", "01J0000000000000000000000").
		Errorf("connection reset")

	errutil.LogError(context.Background(), logger, "save failed", err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "save failed", entry["msg"])
	assert.Equal(t, "IDENTITY_SAVE_FAILED", entry["code"])
	require.IsType(t, map[string]any{}, entry["context"])
	assert.Equal(t, "01J0000000000000000000000", entry["context"].(map[string]any)["identity_id"])
}

func TestLogError_PlainError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	errutil.LogError(context.Background(), logger, "failed", errors.New("plain"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "plain", entry["error"])
	assert.NotContains(t, entry, "code")
}

func TestCode(t *testing.T) {
	assert.Empty(t, errutil.Code(nil))
	assert.Empty(t, errutil.Code(errors.New("plain")))
	assert.Equal(t, "A", errutil.Code(oops.Code("A").Errorf("x")))

	wrapped := fmt.Errorf("outer: %w", oops.Code("INNER").Errorf("x"))
	assert.Equal(t, "INNER", errutil.Code(wrapped))
}
