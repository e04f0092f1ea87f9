package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"chain_stats/internal/domain"
	"chain_stats/internal/logging"
	"chain_stats/internal/store"
)

const usageText = `Available commands:
/stats - all address statistics
/active - active address count
/average - average balance
/above <balance> - addresses holding at least <balance>
/zero - zero balance address count
/count <addresses|transactions> - total documents`

var entityNames = func() []string {
	names := make([]string, 0, len(domain.Entities))
	for _, e := range domain.Entities {
		names = append(names, e.String())
	}
	return names
}()

const unavailableText = "Statistics are temporarily unavailable, please try again later."

// answer resolves a command message into the reply text.
func (c *Client) answer(ctx context.Context, chatID int64, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return usageText
	}

	command := strings.ToLower(fields[0])
	if at := strings.Index(command, "@"); at >= 0 {
		command = command[:at]
	}
	args := fields[1:]

	var (
		reply string
		err   error
	)

	switch command {
	case "/start", "/help":
		return usageText
	case "/stats":
		err = c.withQueries(ctx, func(ctx context.Context, q store.Queries) error {
			snap, err := q.Snapshot(ctx)
			if err != nil {
				return err
			}
			reply = formatSnapshot(snap)
			return nil
		})
	case "/active":
		err = c.withQueries(ctx, func(ctx context.Context, q store.Queries) error {
			count, err := q.CountActiveAddresses(ctx)
			reply = fmt.Sprintf("Active addresses: %d", count)
			return err
		})
	case "/average":
		err = c.withQueries(ctx, func(ctx context.Context, q store.Queries) error {
			avg, err := q.AverageBalance(ctx)
			reply = "Average balance: " + strconv.FormatFloat(avg, 'f', -1, 64)
			return err
		})
	case "/above":
		if len(args) != 1 {
			return "Usage: /above <balance>"
		}
		watermark, parseErr := strconv.ParseInt(args[0], 10, 64)
		if parseErr != nil {
			return "Balance must be an integer."
		}
		err = c.withQueries(ctx, func(ctx context.Context, q store.Queries) error {
			count, err := q.CountAddressesAbove(ctx, watermark)
			reply = fmt.Sprintf("Addresses with balance >= %d: %d", watermark, count)
			return err
		})
	case "/zero":
		err = c.withQueries(ctx, func(ctx context.Context, q store.Queries) error {
			count, err := q.CountZeroBalance(ctx)
			reply = fmt.Sprintf("Zero balance addresses: %d", count)
			return err
		})
	case "/count":
		if len(args) != 1 {
			return "Usage: /count <" + strings.Join(entityNames, "|") + ">"
		}
		entity, parseErr := domain.ParseEntity(args[0])
		if parseErr != nil {
			return fmt.Sprintf("Unknown entity %q. Use %s.", args[0], strings.Join(entityNames, " or "))
		}
		err = c.withQueries(ctx, func(ctx context.Context, q store.Queries) error {
			count, err := q.CountAll(ctx, entity)
			reply = fmt.Sprintf("Total %s: %d", entity, count)
			return err
		})
	default:
		return usageText
	}

	if err != nil {
		c.logger.WithFields(logging.ContextFields(logging.Context{
			ChatID: chatID,
			Entity: entityArg(command, args),
			Event:  "telegram_command_error",
		})).WithField("command", command).WithError(err).Error("stats command failed")
		if errors.Is(err, domain.ErrNotFound) {
			return "Not found."
		}
		return unavailableText
	}

	return reply
}

func (c *Client) withQueries(ctx context.Context, fn func(context.Context, store.Queries) error) error {
	if c.scope == nil {
		return errors.New("query scope is not configured")
	}
	return c.scope.Scope(ctx, fn)
}

func entityArg(command string, args []string) string {
	if command == "/count" && len(args) == 1 {
		return args[0]
	}
	return ""
}

func formatSnapshot(snap domain.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Addresses: %d\n", snap.TotalAddresses)
	fmt.Fprintf(&b, "Transactions: %d\n", snap.TotalTransactions)
	fmt.Fprintf(&b, "Active addresses: %d\n", snap.ActiveAddresses)
	fmt.Fprintf(&b, "Zero balance addresses: %d\n", snap.ZeroBalance)
	b.WriteString("Average balance: " + strconv.FormatFloat(snap.AverageBalance, 'f', -1, 64))
	for _, above := range snap.AddressesAbove {
		fmt.Fprintf(&b, "\nBalance >= %d: %d", above.Watermark, above.Count)
	}
	return b.String()
}
