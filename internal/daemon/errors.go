// SPDX-License-Identifier: MIT

package daemon

import "errors"

var (
	// ErrManagerNotStarted is returned by Shutdown before Start ran.
	ErrManagerNotStarted = errors.New("daemon: manager not started")

	// ErrMissingManager is returned by App.Run without a manager.
	ErrMissingManager = errors.New("daemon: manager is required")
)
