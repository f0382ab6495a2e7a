// Command gocontacts talks to a running gocontacts-server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jowharshamshiri/GoContacts/internal/logging"
	"github.com/jowharshamshiri/GoContacts/pkg/client"
	"github.com/jowharshamshiri/GoContacts/pkg/contacts"
	"github.com/jowharshamshiri/GoContacts/pkg/protocol"
)

var (
	socketPath string
	timeout    time.Duration
	verbose    bool

	readOpts  client.ReadOptions
	avatarOut  string
	highRes    bool

	fields contactFlags

	logger *zap.Logger
)

type contactFlags struct {
	given, middle, family, prefix, suffix string
	company, title, note                  string
	phones, emails                        []string
	avatarFile                            string
}

var rootCmd = &cobra.Command{
	Use:           "gocontacts",
	Short:         "Client for the contacts channel",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(level, true)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the server answers",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.ContactsClient, args []string) error {
		start := time.Now()
		if err := c.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pong in %s\n", time.Since(start).Round(time.Microsecond))
		return nil
	}),
}

var listCmd = &cobra.Command{
	Use:   "list [name-prefix]",
	Short: "List contacts, optionally filtered by display name prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.ContactsClient, args []string) error {
		var query *string
		if len(args) == 1 {
			query = &args[0]
		}
		list, err := c.GetContacts(ctx, query, readOpts)
		if err != nil {
			return err
		}
		return printJSON(cmd, list)
	}),
}

var findPhoneCmd = &cobra.Command{
	Use:   "find-phone <number>",
	Short: "List contacts owning a matching phone number",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.ContactsClient, args []string) error {
		list, err := c.GetContactsForPhone(ctx, args[0], readOpts)
		if err != nil {
			return err
		}
		return printJSON(cmd, list)
	}),
}

var avatarCmd = &cobra.Command{
	Use:   "avatar <id>",
	Short: "Write a contact's photo to a file",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.ContactsClient, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		avatar, err := c.GetAvatar(ctx, contacts.New(id), highRes)
		if err != nil {
			return err
		}
		if avatar == nil {
			return fmt.Errorf("contact %d has no photo", id)
		}
		if avatarOut == "" {
			avatarOut = fmt.Sprintf("contact-%d.png", id)
		}
		if err := os.WriteFile(avatarOut, avatar, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(avatar), avatarOut)
		return nil
	}),
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a contact",
	Args:  cobra.NoArgs,
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.ContactsClient, args []string) error {
		contact := &contacts.Contact{}
		if err := fields.apply(cmd, contact); err != nil {
			return err
		}
		if err := c.AddContact(ctx, contact); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "contact added")
		return nil
	}),
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of an existing contact",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.ContactsClient, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		contact, err := findContact(ctx, c, id)
		if err != nil {
			return err
		}
		if err := fields.apply(cmd, contact); err != nil {
			return err
		}
		if err := c.UpdateContact(ctx, contact); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "contact %d updated\n", id)
		return nil
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a contact",
	Args:  cobra.ExactArgs(1),
	RunE: withClient(func(ctx context.Context, cmd *cobra.Command, c *client.ContactsClient, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := c.DeleteContact(ctx, contacts.New(id)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "contact %d deleted\n", id)
		return nil
	}),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket-path", envOr("GOCONTACTS_SOCKET", "/tmp/gocontacts.sock"), "server socket path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	for _, cmd := range []*cobra.Command{listCmd, findPhoneCmd} {
		cmd.Flags().BoolVar(&readOpts.WithThumbnails, "thumbnails", false, "include photos")
		cmd.Flags().BoolVar(&readOpts.PhotoHighResolution, "high-res", false, "full resolution photos")
		cmd.Flags().BoolVar(&readOpts.OrderByGivenName, "sort", false, "order by given name")
	}

	avatarCmd.Flags().StringVarP(&avatarOut, "out", "o", "", "output file (default contact-<id>.png)")
	avatarCmd.Flags().BoolVar(&highRes, "high-res", false, "full resolution photo")

	for _, cmd := range []*cobra.Command{addCmd, updateCmd} {
		f := cmd.Flags()
		f.StringVar(&fields.given, "given", "", "given name")
		f.StringVar(&fields.middle, "middle", "", "middle name")
		f.StringVar(&fields.family, "family", "", "family name")
		f.StringVar(&fields.prefix, "prefix", "", "name prefix")
		f.StringVar(&fields.suffix, "suffix", "", "name suffix")
		f.StringVar(&fields.company, "company", "", "company")
		f.StringVar(&fields.title, "title", "", "job title")
		f.StringVar(&fields.note, "note", "", "note")
		f.StringArrayVar(&fields.phones, "phone", nil, "phone as label=number, repeatable")
		f.StringArrayVar(&fields.emails, "email", nil, "email as label=address, repeatable")
		f.StringVar(&fields.avatarFile, "avatar", "", "image file to use as photo")
	}

	rootCmd.AddCommand(pingCmd, listCmd, findPhoneCmd, avatarCmd, addCmd, updateCmd, deleteCmd)
}

type clientFunc func(ctx context.Context, cmd *cobra.Command, c *client.ContactsClient, args []string) error

func withClient(fn clientFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg := protocol.DefaultClientConfig()
		cfg.DefaultTimeout = timeout
		cfg.Logger = logger
		c, err := client.Dial(ctx, socketPath, cfg)
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(ctx, cmd, c, args)
	}
}

// apply copies the flags that were set onto contact.
func (f *contactFlags) apply(cmd *cobra.Command, contact *contacts.Contact) error {
	set := func(name string, dst **string, value string) {
		if cmd.Flags().Changed(name) {
			v := value
			*dst = &v
		}
	}
	set("given", &contact.GivenName, f.given)
	set("middle", &contact.MiddleName, f.middle)
	set("family", &contact.FamilyName, f.family)
	set("prefix", &contact.Prefix, f.prefix)
	set("suffix", &contact.Suffix, f.suffix)
	set("company", &contact.Company, f.company)
	set("title", &contact.JobTitle, f.title)
	set("note", &contact.Note, f.note)

	if cmd.Flags().Changed("phone") {
		items, err := parseItems(f.phones)
		if err != nil {
			return fmt.Errorf("--phone: %w", err)
		}
		contact.Phones = items
	}
	if cmd.Flags().Changed("email") {
		items, err := parseItems(f.emails)
		if err != nil {
			return fmt.Errorf("--email: %w", err)
		}
		contact.Emails = items
	}
	if f.avatarFile != "" {
		data, err := os.ReadFile(f.avatarFile)
		if err != nil {
			return err
		}
		contact.Avatar = data
	}
	return nil
}

func parseItems(values []string) ([]contacts.Item, error) {
	items := make([]contacts.Item, 0, len(values))
	for _, v := range values {
		label, value, ok := strings.Cut(v, "=")
		if !ok || value == "" {
			return nil, fmt.Errorf("%q is not label=value", v)
		}
		items = append(items, contacts.Item{Label: label, Value: value})
	}
	return items, nil
}

func findContact(ctx context.Context, c *client.ContactsClient, id int64) (*contacts.Contact, error) {
	list, err := c.GetContacts(ctx, nil, client.ReadOptions{WithThumbnails: true, PhotoHighResolution: true})
	if err != nil {
		return nil, err
	}
	for _, contact := range list {
		if got, ok := contact.ID(); ok && got == id {
			return contact, nil
		}
	}
	return nil, fmt.Errorf("contact %d not found", id)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid contact id %q", s)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, list []*contacts.Contact) error {
	out := make([]map[string]interface{}, 0, len(list))
	for _, c := range list {
		out = append(out, c.ToMap())
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
