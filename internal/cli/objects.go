package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-sbus/pcd"
)

type (
	readWordsFunc func(c *pcd.Client, ctx context.Context, start, count int) ([]uint32, error)
	readBitsFunc  func(c *pcd.Client, ctx context.Context, start, count int) ([]bool, error)
	writeWordFunc func(c *pcd.Client, ctx context.Context, address int, value int64) error
	writeBitFunc  func(c *pcd.Client, ctx context.Context, address int, value bool) error
)

func newReadWordsCommand(g *globalFlags, use, short, prefix string, read readWordsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " START COUNT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, count, err := parseRange(args)
			if err != nil {
				return err
			}

			return g.withSession(cmd, func(ctx context.Context, s *session) error {
				values, err := read(s.client, ctx, start, count)
				if err != nil {
					return err
				}

				rows := wordValues(start, values)

				return g.render(cmd.OutOrStdout(), rows, func(w io.Writer) error {
					for _, r := range rows {
						if _, err := fmt.Fprintf(w, "%s%d\t%d\n", prefix, r.Address, r.Value); err != nil {
							return err
						}
					}

					return nil
				})
			})
		},
	}
}

func newReadBitsCommand(g *globalFlags, use, short, prefix string, read readBitsFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " START COUNT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, count, err := parseRange(args)
			if err != nil {
				return err
			}

			return g.withSession(cmd, func(ctx context.Context, s *session) error {
				values, err := read(s.client, ctx, start, count)
				if err != nil {
					return err
				}

				rows := bitValues(start, values)

				return g.render(cmd.OutOrStdout(), rows, func(w io.Writer) error {
					for _, r := range rows {
						if _, err := fmt.Fprintf(w, "%s%d\t%s\n", prefix, r.Address, onOff(r.Value)); err != nil {
							return err
						}
					}

					return nil
				})
			})
		},
	}
}

func newWriteWordCommand(g *globalFlags, use, short, prefix string, write writeWordFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ADDRESS VALUE",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid address %q", args[0])
			}
			value, err := strconv.ParseInt(args[1], 0, 64)
			if err != nil {
				return fmt.Errorf("invalid value %q", args[1])
			}

			return g.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := write(s.client, ctx, address, value); err != nil {
					return err
				}

				res := WriteResult{Object: prefix, Address: address, Value: value}

				return g.render(cmd.OutOrStdout(), res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s%d <- %d\n", prefix, address, value)
					return err
				})
			})
		},
	}
}

func newWriteBitCommand(g *globalFlags, use, short, prefix string, write writeBitFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ADDRESS on|off",
		Short: short,
		Long:  short + ". The state is one of on, off, true, false, 1 or 0.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid address %q", args[0])
			}
			value, err := parseState(args[1])
			if err != nil {
				return err
			}

			return g.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := write(s.client, ctx, address, value); err != nil {
					return err
				}

				res := WriteResult{Object: prefix, Address: address, Value: value}

				return g.render(cmd.OutOrStdout(), res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s%d <- %s\n", prefix, address, onOff(value))
					return err
				})
			})
		},
	}
}

func parseRange(args []string) (start, count int, err error) {
	start, err = strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start %q", args[0])
	}
	count, err = strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid count %q", args[1])
	}

	return start, count, nil
}

func parseState(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid state %q, expected on|off|true|false|1|0", s)
	}
}
