package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type weatherReply struct {
	Weather struct {
		City     string `json:"city"`
		Country  string `json:"country"`
		Units    string `json:"units"`
		Current  struct {
			Temperature float64 `json:"temperature"`
			Description string  `json:"description"`
			Humidity    int     `json:"humidity"`
		} `json:"current"`
		Forecast []struct {
			Date string  `json:"date"`
			High float64 `json:"high"`
			Low  float64 `json:"low"`
		} `json:"forecast"`
	} `json:"weather"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

type placeReply struct {
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Rating   float64 `json:"rating"`
	Category string  `json:"category"`
}

type placesReply struct {
	Places []placeReply `json:"places"`
	Source string       `json:"source"`
}

type hotelsReply struct {
	Hotels []struct {
		Name       string  `json:"name"`
		Address    string  `json:"address"`
		Rating     float64 `json:"rating"`
		PriceRange string  `json:"price_range"`
		Nights     int     `json:"nights"`
	} `json:"hotels"`
	Source string `json:"source"`
}

type statusReply struct {
	Mode      string `json:"mode"`
	CacheSize int    `json:"cache_size"`
	Providers []struct {
		Service         string     `json:"service"`
		Configured      bool       `json:"configured"`
		CircuitState    string     `json:"circuit_state"`
		FailureCount    int        `json:"failure_count"`
		NextAttemptTime *time.Time `json:"next_attempt_time"`
		TokensAvailable float64    `json:"tokens_available"`
		TokenCapacity   float64    `json:"token_capacity"`
	} `json:"providers"`
}

func run(fn func(ctx context.Context, c *client) (interface{}, error), print func(v interface{})) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		v, err := fn(ctx, newClient(addr, token, timeout))
		if err != nil {
			return err
		}
		if asJSON || print == nil {
			out, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(out))
			return nil
		}
		print(v)
		return nil
	}
}

func weatherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weather <city>",
		Short: "Get current weather and the 5-day forecast",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, c *client) (interface{}, error) {
				var reply weatherReply
				err := c.do(ctx, http.MethodGet, "/v1/weather/"+url.PathEscape(args[0]), nil, nil, &reply)
				return &reply, err
			}, func(v interface{}) {
				r := v.(*weatherReply)
				w := r.Weather
				fmt.Printf("%s, %s: %.1f° %s, humidity %d%% [%s]\n",
					w.City, w.Country, w.Current.Temperature, w.Current.Description, w.Current.Humidity, r.Source)
				tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tHIGH\tLOW")
				for _, d := range w.Forecast {
					fmt.Fprintf(tw, "%s\t%.1f\t%.1f\n", d.Date, d.High, d.Low)
				}
				tw.Flush()
			})(cmd, args)
		},
	}
}

func placesCmd() *cobra.Command {
	var (
		location  string
		placeType string
	)

	cmd := &cobra.Command{
		Use:   "places [query]",
		Short: "Search places of interest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if len(args) == 1 {
				q.Set("query", args[0])
			}
			if location != "" {
				q.Set("location", location)
			}
			if placeType != "" {
				q.Set("type", placeType)
			}
			return run(func(ctx context.Context, c *client) (interface{}, error) {
				var reply placesReply
				err := c.do(ctx, http.MethodGet, "/v1/places", q, nil, &reply)
				return &reply, err
			}, func(v interface{}) {
				r := v.(*placesReply)
				tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "NAME\tCATEGORY\tRATING\tADDRESS\t[%s]\n", r.Source)
				for _, p := range r.Places {
					fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\n", p.Name, p.Category, p.Rating, p.Address)
				}
				tw.Flush()
			})(cmd, args)
		},
	}

	cmd.Flags().StringVarP(&location, "location", "l", "", "Location to search around")
	cmd.Flags().StringVarP(&placeType, "type", "t", "", "Place type (restaurant, museum, park, ...)")
	return cmd
}

func hotelsCmd() *cobra.Command {
	var checkIn, checkOut string

	cmd := &cobra.Command{
		Use:   "hotels <location>",
		Short: "Search hotels for a stay",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("location", args[0])
			q.Set("check_in", checkIn)
			q.Set("check_out", checkOut)
			return run(func(ctx context.Context, c *client) (interface{}, error) {
				var reply hotelsReply
				err := c.do(ctx, http.MethodGet, "/v1/hotels", q, nil, &reply)
				return &reply, err
			}, func(v interface{}) {
				r := v.(*hotelsReply)
				tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(tw, "NAME\tPRICE\tRATING\tNIGHTS\tADDRESS\t[%s]\n", r.Source)
				for _, h := range r.Hotels {
					fmt.Fprintf(tw, "%s\t%s\t%.1f\t%d\t%s\n", h.Name, h.PriceRange, h.Rating, h.Nights, h.Address)
				}
				tw.Flush()
			})(cmd, args)
		},
	}

	cmd.Flags().StringVar(&checkIn, "check-in", "", "Check-in date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&checkOut, "check-out", "", "Check-out date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("check-in")
	_ = cmd.MarkFlagRequired("check-out")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider configuration, breaker and limiter state",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *client) (interface{}, error) {
			var reply statusReply
			err := c.do(ctx, http.MethodGet, "/v1/status", nil, nil, &reply)
			return &reply, err
		}, func(v interface{}) {
			r := v.(*statusReply)
			fmt.Printf("mode: %s  cache entries: %d\n", r.Mode, r.CacheSize)
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SERVICE\tCONFIGURED\tCIRCUIT\tFAILURES\tTOKENS\tRETRY AT")
			for _, p := range r.Providers {
				retryAt := "-"
				if p.NextAttemptTime != nil {
					retryAt = p.NextAttemptTime.Local().Format(time.TimeOnly)
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\t%d\t%.1f/%.0f\t%s\n",
					p.Service, p.Configured, p.CircuitState, p.FailureCount, p.TokensAvailable, p.TokenCapacity, retryAt)
			}
			tw.Flush()
		}),
	}
}

func keysCmd() *cobra.Command {
	var weather, places, hotels string

	cmd := &cobra.Command{
		Use:   "set-keys",
		Short: "Replace provider API keys at runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{}
			for flag, field := range map[string]string{"weather": weather, "places": places, "hotels": hotels} {
				if cmd.Flags().Changed(flag) {
					body[flag] = field
				}
			}
			if len(body) == 0 {
				return fmt.Errorf("at least one of --weather, --places or --hotels is required")
			}
			return run(func(ctx context.Context, c *client) (interface{}, error) {
				return ack(ctx, c, http.MethodPut, "/v1/keys", body)
			}, printAck)(cmd, args)
		},
	}

	cmd.Flags().StringVar(&weather, "weather", "", "Weather provider key")
	cmd.Flags().StringVar(&places, "places", "", "Places provider key")
	cmd.Flags().StringVar(&hotels, "hotels", "", "Hotels provider key")
	return cmd
}

func clearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Drop every cached response",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, c *client) (interface{}, error) {
			return ack(ctx, c, http.MethodDelete, "/v1/cache", nil)
		}, printAck),
	}
}

func resetBreakerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-breaker [service]",
		Short: "Close one circuit breaker, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/breakers/reset"
			if len(args) == 1 {
				path = "/v1/breakers/" + url.PathEscape(args[0]) + "/reset"
			}
			return run(func(ctx context.Context, c *client) (interface{}, error) {
				return ack(ctx, c, http.MethodPost, path, nil)
			}, printAck)(cmd, args)
		},
	}
}

type ackReply struct {
	Status string `json:"status"`
}

func ack(ctx context.Context, c *client, method, path string, body interface{}) (interface{}, error) {
	var reply ackReply
	err := c.do(ctx, method, path, nil, body, &reply)
	return &reply, err
}

func printAck(v interface{}) {
	fmt.Println(v.(*ackReply).Status)
}
