package iface

import "github.com/pkg/errors"

var (
	errFeed = errors.New("" +
		"Usage: /feed COLLECTION\n\n" +
		"COLLECTION – one of hot, new, top, rising. Optional, hot by default.")

	errComments = errors.New("" +
		"Usage: /comments POST_ID\n\n" +
		"POST_ID – reddit post ID (for example, abc123).")

	errNoMore = errors.New("No more items.")
)
