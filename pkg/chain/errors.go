package chain

import (
	"errors"
	"strings"
)

// transientSubstrings lists lower-cased fragments of RPC error messages that
// are worth retrying: connection hiccups, nonce races and mempool
// congestion, as opposed to a contract revert or an invalid call that will
// fail identically every time.
var transientSubstrings = []string{
	"connection refused",
	"connection reset",
	"i/o timeout",
	"eof",
	"too many requests",
	"nonce too low",
	"replacement transaction underpriced",
	"already known",
	"timeout",
}

// IsTransient reports whether err looks like a temporary RPC/network
// condition worth retrying, as opposed to a deterministic failure (revert,
// bad arguments) that will recur on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWaitTimeout) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range transientSubstrings {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// IsReverted reports whether err indicates the EVM reverted execution.
func IsReverted(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "revert") || strings.Contains(msg, "execution reverted")
}
