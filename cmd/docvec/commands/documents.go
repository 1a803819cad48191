package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/viant/docvec"
)

var insertCmd = &cobra.Command{
	Use:   "insert <collection>",
	Short: "Embed and store payloads read as JSON lines",
	Long: `Read one JSON object per line from --file (or stdin) and insert them as a
single all-or-nothing batch. Every object needs a non-empty "text" field.

Example:
  echo '{"text":"a gripping thriller","sentiment":"positive"}' | docvec insert imdb_reviews`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		in := cmd.InOrStdin()
		if file != "" && file != "-" {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()
			in = f
		}
		payloads, err := readPayloads(in)
		if err != nil {
			return err
		}

		env, c, err := openCollection(cmd, args[0])
		if err != nil {
			return err
		}
		defer env.Close()
		ids, err := c.Insert(cmd.Context(), payloads)
		if err != nil {
			return err
		}
		return printJSON(cmd, ids)
	},
}

// readPayloads decodes JSON lines, skipping blank lines.
func readPayloads(r io.Reader) ([]docvec.Payload, error) {
	var payloads []docvec.Payload
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var p docvec.Payload
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		payloads = append(payloads, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read payloads: %w", err)
	}
	return payloads, nil
}

var getCmd = &cobra.Command{
	Use:   "get <collection> <id>",
	Short: "Fetch a document by id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		withVector, _ := cmd.Flags().GetBool("vector")
		env, c, err := openCollection(cmd, args[0])
		if err != nil {
			return err
		}
		defer env.Close()
		doc, err := c.Get(cmd.Context(), args[1])
		if err != nil {
			return err
		}
		if !withVector {
			doc.Vector = nil
		}
		return printJSON(cmd, doc)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <collection> <id> <payload-json>",
	Short: "Replace the payload of a document and re-embed it",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload docvec.Payload
		if err := json.Unmarshal([]byte(args[2]), &payload); err != nil {
			return fmt.Errorf("payload: %w", err)
		}
		env, c, err := openCollection(cmd, args[0])
		if err != nil {
			return err
		}
		defer env.Close()
		if err := c.Update(cmd.Context(), args[1], payload); err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{"updated": args[1]})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <collection> <id>...",
	Short: "Delete documents; unknown ids are ignored",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, c, err := openCollection(cmd, args[0])
		if err != nil {
			return err
		}
		defer env.Close()
		if err := c.Delete(cmd.Context(), args[1:]); err != nil {
			return err
		}
		return printJSON(cmd, map[string]int{"remaining": c.Count()})
	},
}

func init() {
	insertCmd.Flags().StringP("file", "f", "", "JSON-lines input file (default stdin)")
	getCmd.Flags().Bool("vector", false, "include the embedding vector")
	rootCmd.AddCommand(insertCmd, getCmd, updateCmd, deleteCmd)
}
