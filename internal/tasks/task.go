// SPDX-License-Identifier: MIT

// Package tasks implements the file-backed task store. A task lives in
// exactly one state directory at a time:
//
//	<root>/<state>/<remote-ip>/<uuid>/
//
// with task.json holding the parameters, network.sif the resolved input
// network and result.json the diffusion output. The directory tree is the
// source of truth; the badger index in index.go is an advisory lookup
// accelerator only.
package tasks

import (
	"errors"
	"strings"
)

// Task states. Errors fold into DoneState with the message recorded in
// the task parameters, mirroring how results and failures are reported
// through the same status document.
const (
	SubmittedState  = "submitted"
	ProcessingState = "processing"
	DoneState       = "done"
)

// Well-known file names inside a task directory.
const (
	TaskFile    = "task.json"
	NetworkFile = "network.sif"
	ResultFile  = "result.json"
)

// ErrNotFound is returned when no state directory contains the task id.
var ErrNotFound = errors.New("tasks: not found")

// Params are the persisted task parameters. Exactly one of the network
// sources (an uploaded SIF, a BigGIM column or an NDEx UUID) is set.
type Params struct {
	Alpha    float64  `json:"alpha"`
	Seeds    []string `json:"seeds"`
	Column   string   `json:"column,omitempty"`
	NDExID   string   `json:"ndex,omitempty"`
	RemoteIP string   `json:"remoteip"`
	Error    string   `json:"error,omitempty"`
}

// Source names the network source of the parameters.
func (p Params) Source() string {
	switch {
	case p.Column != "":
		return "biggim"
	case p.NDExID != "":
		return "ndex"
	default:
		return "sif"
	}
}

// Task is a stored task together with the state it was found in.
type Task struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Params Params `json:"params"`
}

// ipDir maps a remote address to a directory segment. IPv6 colons are
// not portable across filesystems and tooling, so they are flattened.
func ipDir(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return "unknown"
	}
	return strings.ReplaceAll(ip, ":", "_")
}
