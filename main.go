package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tournevent/huolala/internal/server"
	"github.com/tournevent/huolala/pkg/huolala"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "huolala",
	Short:   "Huolala open-platform client - OAuth tokens and signed API calls",
	Version: version,
}

// tokenStoreHelp is appended to commands that open the token store.
const tokenStoreHelp = `Tokens are cached in the store selected by TOKEN_STORE (memory, redis or sqlite).
The default sqlite store links mattn/go-sqlite3 and needs a cgo-enabled build;
binaries built with CGO_ENABLED=0 must set TOKEN_STORE=memory or TOKEN_STORE=redis.`

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OAuth callback server",
	Long:  "Run the OAuth callback server.\n\n" + tokenStoreHelp,
	RunE:  runServe,
}

var authorizeURLCmd = &cobra.Command{
	Use:   "authorize-url",
	Short: "Print the merchant authorization page URL",
	RunE:  runAuthorizeURL,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the cached access token",
	Long:  "Manage the cached access token.\n\n" + tokenStoreHelp,
}

var tokenExchangeCmd = &cobra.Command{
	Use:   "exchange <code>",
	Short: "Exchange an authorization code (or mobile, with --grant-type password) and cache the token",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenExchange,
}

var tokenGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print a valid access token, refreshing it if expired",
	RunE:  runTokenGet,
}

var tokenInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop the cached access token",
	RunE:  runTokenInvalidate,
}

var callCmd = &cobra.Command{
	Use:   "call <api-method>",
	Short: "Sign and send a generic API call",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

var citiesCmd = &cobra.Command{
	Use:   "cities",
	Short: "List cities with freight service",
	RunE:  runCities,
}

var cityInfoCmd = &cobra.Command{
	Use:   "city-info <city-id>...",
	Short: "Show vehicle options for one or more cities",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCityInfo,
}

var (
	redirectURIFlag string
	grantTypeFlag   string
	dataFlag        string
	authFlag        bool
)

func init() {
	authorizeURLCmd.Flags().StringVar(&redirectURIFlag, "redirect-uri", "", "redirect uri (defaults to HUOLALA_REDIRECT_URI)")
	tokenExchangeCmd.Flags().StringVar(&grantTypeFlag, "grant-type", string(huolala.GrantAuthorizationCode), "authorization_code or password")
	callCmd.Flags().StringVar(&dataFlag, "data", "", "business data as a JSON object")
	callCmd.Flags().BoolVar(&authFlag, "auth", false, "attach the cached access token")

	tokenCmd.AddCommand(tokenExchangeCmd, tokenGetCmd, tokenInvalidateCmd)
	rootCmd.AddCommand(serveCmd, authorizeURLCmd, tokenCmd, callCmd, citiesCmd, cityInfoCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	a.logger.Info("Starting Huolala OAuth callback server",
		zap.Int("port", a.cfg.Port),
		zap.Bool("sandbox", a.cfg.Sandbox),
		zap.String("version", a.cfg.Version),
	)

	srv := server.New(server.Config{
		Port:        a.cfg.Port,
		RedirectURI: a.cfg.RedirectURI,
	}, a.client, a.provider, a.registry, a.logger)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func runAuthorizeURL(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(cmd.Context())

	redirectURI := redirectURIFlag
	if redirectURI == "" {
		redirectURI = a.cfg.RedirectURI
	}
	if redirectURI == "" {
		return fmt.Errorf("redirect uri is required")
	}
	fmt.Fprintln(cmd.OutOrStdout(), a.client.AuthorizeURL(redirectURI))
	return nil
}

func runTokenExchange(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	record, err := a.provider.Exchange(ctx, args[0], huolala.GrantType(grantTypeFlag))
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"app_key":    a.cfg.AppKey,
		"sandbox":    a.cfg.Sandbox,
		"expires_at": record.ExpiresAt,
	})
}

func runTokenGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	token, err := a.provider.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runTokenInvalidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	return a.provider.Invalidate(ctx)
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var data map[string]any
	if dataFlag != "" {
		if err := json.Unmarshal([]byte(dataFlag), &data); err != nil {
			return fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}

	result, err := a.client.Call(ctx, args[0], authFlag, data)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runCities(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	result, err := huolala.NewAppAPI(a.client).CityList(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, result)
}

func runCityInfo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ids := make([]int, 0, len(args))
	for _, arg := range args {
		id, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid city id %q: %w", arg, err)
		}
		ids = append(ids, id)
	}

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	results, errs := huolala.NewAppAPI(a.client).CityInfos(ctx, ids)
	for _, err := range errs {
		a.logger.Warn("City info failed", zap.Error(err))
	}
	if len(results) == 0 && len(errs) > 0 {
		return errs[0]
	}

	out := make(map[string]huolala.Result, len(results))
	for id, r := range results {
		out[strconv.Itoa(id)] = r
	}
	return printJSON(cmd, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
