// Package app implements sovdctl, the command line client of sovd-server.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/auth"
	"github.com/aman-2709/vehicle-sovd-sub000/internal/sovd/core/model"
)

const envPrefix = "SOVDCTL"

type rootOptions struct {
	v       *viper.Viper
	timeout time.Duration
}

// NewRootCommand builds the sovdctl command tree. --server and --token can
// also be set as SOVDCTL_SERVER and SOVDCTL_TOKEN.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "sovdctl",
		Short:         "Submit and follow vehicle diagnostic commands",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().String("server", "http://localhost:8080", "Base URL of sovd-server.")
	cmd.PersistentFlags().String("token", "", "Bearer token used for authentication.")
	cmd.PersistentFlags().StringP("output", "o", "table", "Output format: table or json.")
	cmd.PersistentFlags().DurationVar(&o.timeout, "timeout", 30*time.Second, "Timeout of REST requests.")

	o.v.SetEnvPrefix(envPrefix)
	o.v.AutomaticEnv()
	_ = o.v.BindPFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newSubmitCommand(o),
		newGetCommand(o),
		newHistoryCommand(o),
		newResponsesCommand(o),
		newWatchCommand(o),
		newVehiclesCommand(o),
		newTokenCommand(),
	)
	return cmd
}

func (o *rootOptions) client() (*Client, error) {
	return NewClient(o.v.GetString("server"), o.v.GetString("token"), o.timeout)
}

func (o *rootOptions) jsonOutput() bool {
	return o.v.GetString("output") == "json"
}

func newSubmitCommand(o *rootOptions) *cobra.Command {
	var (
		vehicleID string
		params    []string
		follow    bool
	)
	cmd := &cobra.Command{
		Use:   "submit COMMAND_NAME",
		Short: "Submit a command to a vehicle",
		Example: `  sovdctl submit read_dtc --vehicle veh-1 --param ecu=engine --watch
  sovdctl submit read_data --vehicle veh-1 --param did=F190`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseParams(params)
			if err != nil {
				return err
			}
			c, err := o.client()
			if err != nil {
				return err
			}
			submitted, err := c.SubmitCommand(cmd.Context(), vehicleID, args[0], p)
			if err != nil {
				return err
			}
			if !follow {
				return o.printCommands(cmd.OutOrStdout(), submitted)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "command %s submitted\n", submitted.ID)
			return Watch(cmd.Context(), c.WatchURL(submitted.ID), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&vehicleID, "vehicle", "", "Target vehicle id.")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Command parameter as key=value; repeatable.")
	cmd.Flags().BoolVarP(&follow, "watch", "w", false, "Stream the responses after submitting.")
	_ = cmd.MarkFlagRequired("vehicle")
	return cmd
}

func newGetCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get COMMAND_ID",
		Short: "Show one command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			got, err := c.GetCommand(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return o.printCommands(cmd.OutOrStdout(), got)
		},
	}
}

func newHistoryCommand(o *rootOptions) *cobra.Command {
	var vehicleID, userID, status, from, to string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			for k, v := range map[string]string{"vehicle_id": vehicleID, "user_id": userID, "status": status, "from": from, "to": to} {
				if v != "" {
					q.Set(k, v)
				}
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}

			c, err := o.client()
			if err != nil {
				return err
			}
			cmds, err := c.ListCommands(cmd.Context(), q)
			if err != nil {
				return err
			}
			return o.printCommands(cmd.OutOrStdout(), cmds...)
		},
	}
	cmd.Flags().StringVar(&vehicleID, "vehicle", "", "Only commands of this vehicle.")
	cmd.Flags().StringVar(&userID, "user", "", "Only commands of this user.")
	cmd.Flags().StringVar(&status, "status", "", "Only commands in this status.")
	cmd.Flags().StringVar(&from, "from", "", "Submitted at or after this RFC3339 time.")
	cmd.Flags().StringVar(&to, "to", "", "Submitted at or before this RFC3339 time.")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of commands.")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of commands to skip.")
	return cmd
}

func newResponsesCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "responses COMMAND_ID",
		Short: "Show the stored response chunks of a command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			chunks, err := c.ListResponses(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if o.jsonOutput() {
				return printJSON(cmd.OutOrStdout(), chunks)
			}
			table := uitable.New()
			table.MaxColWidth = 80
			table.AddRow("SEQ", "FINAL", "RECEIVED", "PAYLOAD")
			for _, ch := range chunks {
				payload, _ := json.Marshal(ch.Payload)
				table.AddRow(ch.Sequence, ch.IsFinal, ch.ReceivedAt.Format(time.RFC3339), string(payload))
			}
			fmt.Fprintln(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

func newWatchCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch COMMAND_ID",
		Short: "Stream the responses of a command until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			return Watch(cmd.Context(), c.WatchURL(args[0]), cmd.OutOrStdout())
		},
	}
}

func newVehiclesCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicles",
		Short: "List registered vehicles",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			vehicles, err := c.ListVehicles(cmd.Context())
			if err != nil {
				return err
			}
			return o.printVehicles(cmd.OutOrStdout(), vehicles...)
		},
	}

	var id, vin, name string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a vehicle (admin only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			v, err := c.RegisterVehicle(cmd.Context(), &model.Vehicle{ID: id, VIN: vin, Name: name})
			if err != nil {
				return err
			}
			return o.printVehicles(cmd.OutOrStdout(), v)
		},
	}
	register.Flags().StringVar(&id, "id", "", "Vehicle id; generated when empty.")
	register.Flags().StringVar(&vin, "vin", "", "Vehicle identification number.")
	register.Flags().StringVar(&name, "name", "", "Display name.")
	_ = register.MarkFlagRequired("vin")

	cmd.AddCommand(register)
	return cmd
}

func newTokenCommand() *cobra.Command {
	var secret, issuer, subject, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("SOVD_JWT_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("a signing secret is required (--secret or $SOVD_JWT_SECRET)")
			}
			token, err := auth.IssueToken(secret, issuer, subject, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 secret; defaults to $SOVD_JWT_SECRET.")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Token issuer.")
	cmd.Flags().StringVar(&subject, "subject", "", "User id placed in the sub claim.")
	cmd.Flags().StringVar(&role, "role", "", "Role claim.")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime.")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func (o *rootOptions) printCommands(w io.Writer, cmds ...*model.Command) error {
	if o.jsonOutput() {
		if len(cmds) == 1 {
			return printJSON(w, cmds[0])
		}
		return printJSON(w, cmds)
	}
	table := uitable.New()
	table.MaxColWidth = 48
	table.AddRow("ID", "VEHICLE", "COMMAND", "STATUS", "SUBMITTED", "ERROR")
	for _, c := range cmds {
		table.AddRow(c.ID, c.VehicleID, c.Name, c.Status, c.SubmittedAt.Format(time.RFC3339), c.ErrorMessage)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}

func (o *rootOptions) printVehicles(w io.Writer, vehicles ...*model.Vehicle) error {
	if o.jsonOutput() {
		return printJSON(w, vehicles)
	}
	table := uitable.New()
	table.AddRow("ID", "VIN", "NAME", "CONNECTION")
	for _, v := range vehicles {
		table.AddRow(v.ID, v.VIN, v.Name, v.ConnectionStatus)
	}
	_, err := fmt.Fprintln(w, table)
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseParams turns key=value pairs into a parameter object. Values that parse
// as JSON (numbers, booleans, objects) keep their type.
func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}
