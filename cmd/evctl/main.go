// cmd/evctl is the command-line client for the evidence ledger. Its verify
// command is the independent auditor: it fetches entries over the
// public read API and replays the whole chain locally, so agreement
// with the server requires nothing but the published data.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/civil-whisper/evidence-ledger/internal/ledger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at release time via -ldflags "-X main.version=...".
var version = "dev"

var serverURL string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "evctl",
	Short: "Evidence ledger client",
	Long: `evctl inspects and independently verifies a civic-deliberation
evidence ledger over its public read API.

The verify command downloads the full chain and recomputes every hash
locally; a valid result means the published history has not been
altered, regardless of what the server claims.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		viper.SetEnvPrefix("evctl")
		viper.AutomaticEnv()
		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledger server base URL (env EVCTL_SERVER)")
	rootCmd.AddCommand(verifyCmd, tailCmd, entryCmd, historyCmd, versionCmd)
	tailCmd.Flags().IntP("count", "n", 10, "number of entries to show")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the evctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Download the full chain and verify it locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := fetchAll()
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Sequence < entries[j].Sequence })

		res := ledger.Verify(entries, ledger.GenesisPrevHash)
		if !res.Valid {
			fmt.Printf("INVALID: chain broken at sequence %d\n%s\n", res.FirstBrokenSequence, res.Reason)
			os.Exit(2)
		}
		fmt.Printf("valid: %d entries, tip ", len(entries))
		if len(entries) > 0 {
			fmt.Println(entries[len(entries)-1].Hash)
		} else {
			fmt.Println("(empty chain)")
		}
		return nil
	},
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the newest entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("count")
		page, err := fetchPage(0, n)
		if err != nil {
			return err
		}
		printEntries(page.Entries)
		return nil
	},
}

var entryCmd = &cobra.Command{
	Use:   "entry <seq>",
	Short: "Show a single entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var entry ledger.Entry
		if err := getJSON(fmt.Sprintf("%s/api/v1/ledger/entries/%s", serverURL, args[0]), &entry); err != nil {
			return err
		}
		out, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <entity-type> <entity-id>",
	Short: "Show the full event history of one entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Entries []*ledger.Entry `json:"entries"`
		}
		url := fmt.Sprintf("%s/api/v1/ledger/entities/%s/%s", serverURL, args[0], args[1])
		if err := getJSON(url, &resp); err != nil {
			return err
		}
		printEntries(resp.Entries)
		return nil
	},
}

type entriesPage struct {
	Entries    []*ledger.Entry `json:"entries"`
	NextCursor int64           `json:"next_cursor"`
}

// fetchAll pages through the whole ledger, newest first.
func fetchAll() ([]*ledger.Entry, error) {
	var all []*ledger.Entry
	cursor := int64(0)
	for {
		page, err := fetchPage(cursor, 200)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Entries...)
		if page.NextCursor < 0 || len(page.Entries) == 0 {
			return all, nil
		}
		cursor = page.NextCursor
	}
}

func fetchPage(cursor int64, limit int) (*entriesPage, error) {
	url := fmt.Sprintf("%s/api/v1/ledger/entries?limit=%d", serverURL, limit)
	if cursor > 0 {
		url = fmt.Sprintf("%s&cursor=%d", url, cursor)
	}
	var page entriesPage
	if err := getJSON(url, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func getJSON(url string, out any) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", url, resp.Status, string(body))
	}

	// UseNumber keeps large integer payload values exact, so local
	// hash recomputation matches the writer's.
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	return dec.Decode(out)
}

func printEntries(entries []*ledger.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIMESTAMP\tEVENT\tENTITY\tHASH")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s/%s\t%.12s…\n",
			e.Sequence, e.Timestamp.String(), e.EventType, e.EntityType, e.EntityID, e.Hash)
	}
	w.Flush() //nolint:errcheck
}
