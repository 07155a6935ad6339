package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/openpgp"

	"github.com/zeroinstall/zeroinstall/feed"
	"github.com/zeroinstall/zeroinstall/model"
	"github.com/zeroinstall/zeroinstall/trust"
)

var importKeyring string

func init() {
	importCmd.Flags().StringVar(&importKeyring, "keyring", "", "path to an ASCII-armored OpenPGP keyring used to verify the feed's signature")
}

// promptTrustHandler confirms an otherwise-untrusted signer over stdin,
// the same bufio.NewReader read-a-line-then-compare-to-"y" shape
// pruner/graph.go's confirmPrune uses for its own destructive-action
// prompt.
type promptTrustHandler struct {
	in  io.Reader
	out io.Writer
}

func (h promptTrustHandler) ConfirmKey(fingerprint, domain string) bool {
	reader := bufio.NewReader(h.in)
	for {
		fmt.Fprintf(h.out, "Key %s is not yet trusted for %s. Trust it? [y/N] ", fingerprint, domain)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "", "n", "no":
			return false
		}
	}
}

// importCmd implements spec §4.3's trust check on a local feed file: split
// its signature trailer, verify against an optional keyring, and prompt
// (unless already trusted) before caching it.
var importCmd = &cobra.Command{
	Use:   "import <feed-file>",
	Short: "Verify a local feed's signature and add it to the feed cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		payload, _, err := trust.SplitPayload(raw)
		if err != nil {
			return fmt.Errorf("split signature trailer: %w", err)
		}
		doc, err := feed.Parse(payload)
		if err != nil {
			return fmt.Errorf("parse %s: %w", args[0], err)
		}
		domain := doc.Name
		if uri, ok := feedURIFromArg(args[0]); ok {
			if host := uri.Host(); host != "" {
				domain = host
			}
		}

		var keyring openpgp.EntityList
		if importKeyring != "" {
			f, err := os.Open(importKeyring)
			if err != nil {
				return fmt.Errorf("open keyring %s: %w", importKeyring, err)
			}
			defer f.Close()
			if keyring, err = openpgp.ReadArmoredKeyRing(f); err != nil {
				return fmt.Errorf("read keyring %s: %w", importKeyring, err)
			}
		}

		db, err := openTrustDB()
		if err != nil {
			return fmt.Errorf("open trust database: %w", err)
		}

		handler := promptTrustHandler{in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
		result, err := trust.CheckTrust(ctx, db, keyring, nil, handler, raw, domain)
		if err != nil {
			return fmt.Errorf("check trust: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "signature by %s trusted for %s\n", result.Fingerprint, domain)

		cache := feed.New(cacheDir + "/interfaces")
		uri, ok := feedURIFromArg(args[0])
		if !ok {
			return fmt.Errorf("import target must be a file: URI or local path usable as one")
		}
		if err := cache.Add(ctx, uri, raw); err != nil {
			return fmt.Errorf("add to feed cache: %w", err)
		}
		return nil
	},
}

// feedURIFromArg turns a local file path into the file: FeedURI the feed
// cache keys entries under, absolutizing it first so relative paths on
// the command line still resolve to a stable key across invocations.
func feedURIFromArg(path string) (model.FeedURI, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return model.FeedURI{}, false
	}
	uri, err := model.NewFeedURI(abs)
	if err != nil {
		return model.FeedURI{}, false
	}
	return uri, true
}
