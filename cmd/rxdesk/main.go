package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rxdesk/rxdesk/internal/api"
	"github.com/rxdesk/rxdesk/internal/gateway"
	"github.com/rxdesk/rxdesk/internal/report"
	"github.com/rxdesk/rxdesk/internal/session"
	"github.com/rxdesk/rxdesk/pkg/models"
)

const usage = `rxdesk - pharmacy inventory admin client

Usage: rxdesk <command> [arguments]

Commands:
  login      Sign in and store the session
  logout     Clear the stored session
  signup     Register a new account
  me         Show the signed-in user
  inventory  list | add | rm <id> | export [file]
  low-stock  Show items at or below their threshold
  suppliers  list | add | rm <id>
  order      Place an order: order <item-id:qty> [...] [-discount 10%] [-discount 50]
  orders     list | history | get <id> | set-status <id> <status>
  watch      Stream live order events

Environment:
  RXDESK_API_URL   Backend base URL (default http://localhost:8000)
  RXDESK_STATE_DB  Session database path (default ~/.rxdesk/session.db)
`

type app struct {
	logger    *logrus.Logger
	session   *session.Store
	gw        *gateway.Gateway
	auth      *api.AuthClient
	inventory *api.InventoryClient
	suppliers *api.SupplierClient
	orders    *api.OrderClient
	baseURL   string
	in        *bufio.Reader
	out       io.Writer
}

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if lvl, err := logrus.ParseLevel(os.Getenv("RXDESK_LOG")); err == nil {
		logger.SetLevel(lvl)
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	dbPath := os.Getenv("RXDESK_STATE_DB")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			logger.WithError(err).Fatal("Failed to locate home directory")
		}
		dbPath = filepath.Join(home, ".rxdesk", "session.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		logger.WithError(err).Fatal("Failed to create state directory")
	}

	store, err := session.Open(dbPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open session store")
	}
	defer store.Close()

	baseURL := os.Getenv("RXDESK_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	gw := gateway.New(baseURL, store, logger, gateway.WithAuthExpired(func() {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'rxdesk login' to sign in again.")
	}))

	a := &app{
		logger:    logger,
		session:   store,
		gw:        gw,
		auth:      api.NewAuthClient(gw, store, logger),
		inventory: api.NewInventoryClient(gw, logger),
		suppliers: api.NewSupplierClient(gw, logger),
		orders:    api.NewOrderClient(gw, logger),
		baseURL:   baseURL,
		in:        bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}

	if err := a.run(context.Background(), os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", renderError(err))
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.cmdLogin(ctx, args)
	case "logout":
		return a.cmdLogout(ctx)
	case "signup":
		return a.cmdSignup(ctx, args)
	case "me":
		return a.cmdMe(ctx)
	case "inventory":
		return a.cmdInventory(ctx, args)
	case "low-stock":
		return a.cmdLowStock(ctx)
	case "suppliers":
		return a.cmdSuppliers(ctx, args)
	case "order":
		return a.cmdOrder(ctx, args)
	case "orders":
		return a.cmdOrders(ctx, args)
	case "watch":
		return a.cmdWatch(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q, run 'rxdesk help'", command)
	}
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	fs.Parse(args)

	if *username == "" {
		*username = a.prompt("Username: ")
	}
	if *password == "" {
		*password = a.prompt("Password: ")
	}

	if _, err := a.auth.Login(ctx, *username, *password); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", *username)
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) cmdSignup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	req := api.SignupRequest{}
	fs.StringVar(&req.Username, "u", "", "username")
	fs.StringVar(&req.Password, "p", "", "password")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.Mobile, "mobile", "", "mobile number")
	fs.IntVar(&req.Age, "age", 0, "age")
	fs.StringVar(&req.Gender, "gender", "", "gender")
	fs.StringVar(&req.Address, "address", "", "postal address")
	fs.Parse(args)

	if req.Username == "" || req.Password == "" || req.Email == "" {
		return errors.New("signup requires -u, -p and -email")
	}
	if err := a.auth.Signup(ctx, req); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Account %s created. Run 'rxdesk login' to sign in.\n", req.Username)
	return nil
}

func (a *app) cmdMe(ctx context.Context) error {
	user, err := a.auth.Me(ctx)
	if err != nil {
		return err
	}
	role := "user"
	if user.IsStaff {
		role = "admin"
	}
	fmt.Fprintf(a.out, "%s <%s> (%s)\n", user.Username, user.Email, role)
	return nil
}

func (a *app) cmdInventory(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		items, err := a.inventory.List(ctx)
		if err != nil {
			return err
		}
		a.printItems(items)
		return nil
	case "add":
		return a.addItemInteractive(ctx)
	case "rm":
		if len(args) < 2 {
			return errors.New("usage: rxdesk inventory rm <id>")
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid item id %q", args[1])
		}
		if err := a.inventory.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted item %d\n", id)
		return nil
	case "export":
		data, err := a.inventory.DownloadReport(ctx)
		if err != nil {
			return err
		}
		path := "inventory_report.csv"
		if len(args) > 1 {
			path = args[1]
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Fprintf(a.out, "Report written to %s\n", path)
		return nil
	default:
		return fmt.Errorf("unknown inventory subcommand %q", args[0])
	}
}

func (a *app) addItemInteractive(ctx context.Context) error {
	item := models.InventoryItem{
		Name: a.prompt("Name: "),
		SKU:  a.prompt("SKU: "),
	}
	var err error
	if item.Quantity, err = strconv.Atoi(a.prompt("Quantity: ")); err != nil {
		return errors.New("quantity must be a whole number")
	}
	if item.Price, err = decimal.NewFromString(a.prompt("Price: ")); err != nil {
		return errors.New("price must be a number")
	}
	if item.Threshold, err = strconv.Atoi(a.prompt("Low-stock threshold: ")); err != nil {
		return errors.New("threshold must be a whole number")
	}
	if raw := a.prompt("Supplier id (blank for none): "); raw != "" {
		if item.SupplierID, err = strconv.Atoi(raw); err != nil {
			return errors.New("supplier id must be a whole number")
		}
	}
	item.ExpirationDate = a.prompt("Expiration date (YYYY-MM-DD, blank for none): ")

	created, err := a.inventory.Create(ctx, item)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Created item %d (%s)\n", created.ID, created.SKU)
	return nil
}

func (a *app) cmdLowStock(ctx context.Context) error {
	items, err := a.inventory.LowStock(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "All items are above their thresholds.")
		return nil
	}

	summary := report.NewAnalyzer(a.logger).Summarize(items)
	a.printItems(items)
	fmt.Fprintf(a.out, "\n%d items low, total shortfall %d units\n", summary.TotalItems, summary.TotalShortfall)

	suppliers := make([]string, 0, len(summary.BySupplier))
	for name := range summary.BySupplier {
		suppliers = append(suppliers, name)
	}
	sort.Strings(suppliers)
	for _, name := range suppliers {
		fmt.Fprintf(a.out, "  %s: %d units short\n", name, summary.BySupplier[name])
	}
	return nil
}

func (a *app) cmdSuppliers(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		suppliers, err := a.suppliers.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tGST\tPHONE\tADDRESS")
		for _, s := range suppliers {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.GSTNumber, s.Phone, s.Address)
		}
		return w.Flush()
	case "add":
		supplier := models.Supplier{
			Name:      a.prompt("Name: "),
			GSTNumber: a.prompt("GST number: "),
			Email:     a.prompt("Email (blank for none): "),
			Phone:     a.prompt("Phone (blank for none): "),
			Address:   a.prompt("Address: "),
		}
		created, err := a.suppliers.Create(ctx, supplier)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Created supplier %d (%s)\n", created.ID, created.Name)
		return nil
	case "rm":
		if len(args) < 2 {
			return errors.New("usage: rxdesk suppliers rm <id>")
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid supplier id %q", args[1])
		}
		if err := a.suppliers.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Deleted supplier %d\n", id)
		return nil
	default:
		return fmt.Errorf("unknown suppliers subcommand %q", args[0])
	}
}

func (a *app) cmdOrders(ctx context.Context, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		orders, err := a.orders.List(ctx)
		if err != nil {
			return err
		}
		a.printOrders(orders)
		return nil
	case "history":
		orders, err := a.orders.History(ctx)
		if err != nil {
			return err
		}
		a.printOrders(orders)
		return nil
	case "get":
		if len(args) < 2 {
			return errors.New("usage: rxdesk orders get <id>")
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid order id %q", args[1])
		}
		order, err := a.orders.Get(ctx, id)
		if err != nil {
			return err
		}
		a.printOrderDetail(order)
		return nil
	case "set-status":
		if len(args) < 3 {
			return errors.New("usage: rxdesk orders set-status <id> <status>")
		}
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid order id %q", args[1])
		}
		status := strings.ToUpper(args[2])
		if err := a.orders.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Order %d is now %s\n", id, status)
		return nil
	default:
		return fmt.Errorf("unknown orders subcommand %q", args[0])
	}
}

func (a *app) printItems(items []models.InventoryItem) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSKU\tQTY\tPRICE\tTHRESHOLD\tSUPPLIER")
	for _, item := range items {
		supplier := "-"
		if item.Supplier != nil {
			supplier = item.Supplier.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%s\n",
			item.ID, item.Name, item.SKU, item.Quantity,
			item.Price.StringFixed(2), item.Threshold, supplier)
	}
	w.Flush()
}

func (a *app) printOrders(orders []models.Order) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tITEMS\tTOTAL\tSTATUS\tCREATED")
	for _, order := range orders {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\n",
			order.ID, order.User, len(order.Items),
			order.TotalAmount.StringFixed(2), order.Status,
			order.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func (a *app) printOrderDetail(order models.Order) {
	fmt.Fprintf(a.out, "Order #%d  %s  %s\n", order.ID, order.Status, order.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(a.out, "Deliver to: %s\n", order.DeliveryAddress)
	if order.BillingName != "" {
		fmt.Fprintf(a.out, "Bill to:    %s, %s\n", order.BillingName, order.BillingAddress)
	}
	if order.TaxID != "" {
		fmt.Fprintf(a.out, "GST:        %s\n", order.TaxID)
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ITEM\tSKU\tQTY\tPRICE")
	for _, line := range order.Items {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", line.ItemName, line.ItemSKU, line.Quantity, line.PriceAtOrder.StringFixed(2))
	}
	w.Flush()
	fmt.Fprintf(a.out, "Total: %s\n", order.TotalAmount.StringFixed(2))
}

func (a *app) prompt(label string) string {
	fmt.Fprint(a.out, label)
	line, _ := a.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func renderError(err error) string {
	var serverErr *gateway.ServerError
	if errors.As(err, &serverErr) {
		if len(serverErr.Fields) > 0 {
			parts := make([]string, 0, len(serverErr.Fields))
			for field, msgs := range serverErr.Fields {
				parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, "; ")))
			}
			sort.Strings(parts)
			return strings.Join(parts, "\n       ")
		}
		return serverErr.Message()
	}
	if errors.Is(err, gateway.ErrUnauthenticated) {
		return "not signed in. Run 'rxdesk login' first."
	}
	return err.Error()
}
