//go:build tools
// +build tools

/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package bnsim pins the development tools used by this repository.
package bnsim

import (
	_ "honnef.co/go/tools/cmd/staticcheck"
)
