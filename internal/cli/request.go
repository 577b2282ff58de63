package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/me/gochef/internal/httpclient"
)

func newRequestCmd() *cobra.Command {
	var data string

	cmd := &cobra.Command{
		Use:   "request <method> <path>",
		Short: "Send a raw API call through the session-aware client",
		Long: "Send a raw API call. The path picks the backend: paths under /recipes or " +
			"/favorites go to the recipe backend, everything else to the auth backend.",
		Example: "  gochef request GET /api/v1/recipes/feed?size=5\n" +
			"  gochef request POST /api/v1/recipes/save --data '{\"title\":\"Soup\",\"instructions\":\"Boil.\"}'",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[1])
			if err != nil {
				return fmt.Errorf("parse path: %w", err)
			}
			req := &httpclient.Request{
				Method: strings.ToUpper(args[0]),
				Path:   u.Path,
				Query:  u.Query(),
			}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data is not valid JSON")
				}
				req.RawBody = []byte(data)
				req.ContentType = "application/json"
			}

			resp, err := client.LegacyHTTP.Do(cmd.Context(), req)
			if err != nil {
				var he *httpclient.Error
				if errors.As(err, &he) && len(he.Body) > 0 {
					cmd.OutOrStdout().Write(append(he.Body, '\n'))
				}
				return err
			}

			var pretty bytes.Buffer
			if json.Indent(&pretty, resp.Body, "", "  ") == nil {
				pretty.WriteByte('\n')
				_, err = pretty.WriteTo(cmd.OutOrStdout())
				return err
			}
			_, err = cmd.OutOrStdout().Write(resp.Body)
			return err
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	return cmd
}
