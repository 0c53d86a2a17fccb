package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poolfund/poolfund-api/internal/auth"
	"github.com/poolfund/poolfund-api/internal/broadcast"
	"github.com/poolfund/poolfund-api/internal/database"
	"github.com/poolfund/poolfund-api/internal/governance"
	"github.com/poolfund/poolfund-api/internal/ledger"
	"github.com/poolfund/poolfund-api/internal/session"
	"github.com/poolfund/poolfund-api/internal/swap"
	"github.com/poolfund/poolfund-api/internal/types"
	"github.com/poolfund/poolfund-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	numGroups       = 5
	membersPerGroup = 6
	pollsPerGroup   = 8
	numSwapUsers    = 10
	swapsPerUser    = 5
	serverAddress   = "http://localhost:8080"
	jwtSecret       = "poolfund-simulation-secret"
	databasePath    = "simulation.db"
)

// Well-known mainnet mints so quote building passes address validation
var mints = []string{
	"So11111111111111111111111111111111111111112", // wSOL
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", // USDC
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", // USDT
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", // BONK
	"4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R", // RAY
}

var sides = []string{types.SideBuy, types.SideSell}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the pooled trading API.
// Every simulated user gets their own JWT, cached by user id.
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats

	tokenMu sync.Mutex
	tokens  map[string]string
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":         {name: "Authentication"},
			"create_group": {name: "Create Group"},
			"join":         {name: "Join Group"},
			"deposit":      {name: "Deposit"},
			"create_poll":  {name: "Create Poll"},
			"vote":         {name: "Cast Vote"},
			"execute":      {name: "Execute Poll"},
			"summary":      {name: "Group Summary"},
			"quote":        {name: "Swap Quote"},
			"approve":      {name: "Swap Approve"},
		},
		tokens: make(map[string]string),
	}
}

// tokenFor authenticates as the given user, caching the resulting JWT
func (sc *simulationClient) tokenFor(userID string) (string, error) {
	sc.tokenMu.Lock()
	if token, ok := sc.tokens[userID]; ok {
		sc.tokenMu.Unlock()
		return token, nil
	}
	sc.tokenMu.Unlock()

	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
		"user_id":    userID,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		sc.stats["auth"].addFailure()
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["auth"].addFailure()
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	sc.tokenMu.Lock()
	sc.tokens[userID] = result.Data.Token
	sc.tokenMu.Unlock()

	return result.Data.Token, nil
}

// do performs an authenticated request and decodes the standard response
// envelope into out (when out is non-nil)
func (sc *simulationClient) do(userID, method, path, statKey string, payload, out interface{}) error {
	start := time.Now()
	stats := sc.stats[statKey]
	defer func() {
		stats.addDuration(time.Since(start))
	}()

	token, err := sc.tokenFor(userID)
	if err != nil {
		stats.addFailure()
		return err
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		stats.addFailure()
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		stats.addFailure()
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		stats.addFailure()
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	envelope := struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return nil
}

func (sc *simulationClient) createGroup(userID, name string, maxMembers int) (string, error) {
	var group types.Group
	err := sc.do(userID, "POST", "/api/v1/groups", "create_group",
		map[string]interface{}{"name": name, "max_members": maxMembers}, &group)
	if err != nil {
		return "", err
	}
	if group.GroupID == "" {
		return "", fmt.Errorf("no group ID in response")
	}
	return group.GroupID, nil
}

func (sc *simulationClient) joinGroup(userID, groupID, role string) error {
	return sc.do(userID, "POST", fmt.Sprintf("/api/v1/groups/%s/join", groupID), "join",
		map[string]string{"role": role}, nil)
}

func (sc *simulationClient) deposit(userID, groupID string, amount float64) error {
	return sc.do(userID, "POST", fmt.Sprintf("/api/v1/groups/%s/deposit", groupID), "deposit",
		map[string]float64{"amount": amount}, nil)
}

func (sc *simulationClient) createPoll(userID, groupID, pollType, mint, side string, amount float64) (string, error) {
	payload := map[string]interface{}{
		"poll_type":  pollType,
		"expires_in": "1h",
	}
	if pollType == types.PollTypeTrade {
		payload["token_mint"] = mint
		payload["side"] = side
		payload["amount"] = amount
	}

	var poll types.Poll
	err := sc.do(userID, "POST", fmt.Sprintf("/api/v1/groups/%s/polls", groupID), "create_poll", payload, &poll)
	if err != nil {
		return "", err
	}
	if poll.PollID == "" {
		return "", fmt.Errorf("no poll ID in response")
	}
	return poll.PollID, nil
}

func (sc *simulationClient) castVote(userID, pollID string, approve bool) error {
	return sc.do(userID, "POST", fmt.Sprintf("/api/v1/polls/%s/votes", pollID), "vote",
		map[string]bool{"approve": approve}, nil)
}

func (sc *simulationClient) executePoll(userID, pollID string) (*types.Poll, error) {
	var poll types.Poll
	err := sc.do(userID, "POST", fmt.Sprintf("/api/v1/internal/polls/%s/execute", pollID), "execute", nil, &poll)
	if err != nil {
		return nil, err
	}
	return &poll, nil
}

func (sc *simulationClient) groupSummary(userID, groupID string) (*types.GroupSummary, error) {
	var summary types.GroupSummary
	err := sc.do(userID, "GET", fmt.Sprintf("/api/v1/groups/%s/summary", groupID), "summary", nil, &summary)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (sc *simulationClient) quote(userID, mint, side string, amount float64) (string, error) {
	var quote swap.QuoteResponse
	err := sc.do(userID, "POST", "/api/v1/orders/quote", "quote",
		map[string]interface{}{"token_mint": mint, "side": side, "amount": amount}, &quote)
	if err != nil {
		return "", err
	}
	if quote.RequestID == "" {
		return "", fmt.Errorf("no request ID in response")
	}
	return quote.RequestID, nil
}

func (sc *simulationClient) approve(userID, requestID string) (*types.SwapResult, error) {
	var result types.SwapResult
	err := sc.do(userID, "POST", "/api/v1/orders/approve", "approve",
		map[string]string{"request_id": requestID}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %8s %8s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %8d %8d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the pooled trading simulation
// It starts a local API server and drives concurrent chat groups through
// the full lifecycle: create, join, deposit, poll, vote, execute
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient := newSimulationClient()

	stats := struct {
		GroupsCreated  int
		PollsCreated   int
		PollsExecuted  int
		PollsRejected  int
		SwapsApproved  int
		SwapsFailed    int
		TotalDeposited float64
		StartTime      time.Time
	}{StartTime: time.Now()}

	var statsMu sync.Mutex

	// Drive each group through its lifecycle concurrently
	var wg sync.WaitGroup
	for g := 0; g < numGroups; g++ {
		wg.Add(1)
		go func(groupNum int) {
			defer wg.Done()

			created, executed, rejected, deposited := runGroupLifecycle(groupNum, simClient)

			statsMu.Lock()
			stats.GroupsCreated++
			stats.PollsCreated += created
			stats.PollsExecuted += executed
			stats.PollsRejected += rejected
			stats.TotalDeposited += deposited
			statsMu.Unlock()
		}(g)
	}

	// Individual swap sessions run alongside the group traffic
	for u := 0; u < numSwapUsers; u++ {
		wg.Add(1)
		go func(userNum int) {
			defer wg.Done()

			approved, failed := runSwapSessions(userNum, simClient)

			statsMu.Lock()
			stats.SwapsApproved += approved
			stats.SwapsFailed += failed
			statsMu.Unlock()
		}(u)
	}

	wg.Wait()

	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("POOLED TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Groups Created:   %d
Total Deposited:  $%.2f
Polls Created:    %d
Polls Executed:   %d
Polls Rejected:   %d
Swaps Approved:   %d
Swaps Failed:     %d
Duration:         %v
`, stats.GroupsCreated, stats.TotalDeposited, stats.PollsCreated, stats.PollsExecuted,
		stats.PollsRejected, stats.SwapsApproved, stats.SwapsFailed,
		duration.Round(time.Millisecond))

	log.Info().
		Int("groups", stats.GroupsCreated).
		Int("polls_executed", stats.PollsExecuted).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// runGroupLifecycle creates one group, fills it with members, funds the
// pool, and runs a series of trade polls through voting and execution
func runGroupLifecycle(groupNum int, sc *simulationClient) (created, executed, rejected int, deposited float64) {
	admin := fmt.Sprintf("admin_%d", groupNum)
	logger := log.With().Int("group_num", groupNum).Str("admin", admin).Logger()

	groupID, err := sc.createGroup(admin, fmt.Sprintf("degen-chat-%d", groupNum), membersPerGroup)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create group")
		return
	}
	logger.Info().Str("group_id", groupID).Msg("Group created")

	members := []string{admin}
	for m := 1; m < membersPerGroup; m++ {
		userID := fmt.Sprintf("user_%d_%d", groupNum, m)
		role := types.RoleMember
		if m == 1 {
			role = types.RoleTrader
		}
		if err := sc.joinGroup(userID, groupID, role); err != nil {
			logger.Error().Err(err).Str("user_id", userID).Msg("Failed to join group")
			continue
		}
		members = append(members, userID)
	}

	for _, userID := range members {
		amount := float64(rand.Intn(900) + 100)
		if err := sc.deposit(userID, groupID, amount); err != nil {
			logger.Error().Err(err).Str("user_id", userID).Msg("Failed to deposit")
			continue
		}
		deposited += amount
	}

	trader := members[0]
	if len(members) > 1 {
		trader = members[1]
	}

	for p := 0; p < pollsPerGroup; p++ {
		mint := mints[rand.Intn(len(mints))]
		side := sides[rand.Intn(len(sides))]
		amount := float64(rand.Intn(50) + 1)

		pollID, err := sc.createPoll(trader, groupID, types.PollTypeTrade, mint, side, amount)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create poll")
			continue
		}
		created++

		// Most members approve; occasionally a poll dies for lack of votes
		for _, userID := range members {
			if rand.Float64() < 0.8 {
				if err := sc.castVote(userID, pollID, rand.Float64() < 0.9); err != nil {
					logger.Error().Err(err).Str("user_id", userID).Msg("Failed to cast vote")
				}
			}
		}

		poll, err := sc.executePoll(admin, pollID)
		if err != nil {
			rejected++
			logger.Info().Err(err).Str("poll_id", pollID).Msg("Poll not executed")
			continue
		}
		executed++
		logger.Info().
			Str("poll_id", poll.PollID).
			Str("side", poll.Side).
			Float64("amount", poll.Amount).
			Msg("Poll executed")

		time.Sleep(time.Duration(rand.Intn(100)) * time.Millisecond)
	}

	if summary, err := sc.groupSummary(admin, groupID); err == nil {
		logger.Info().
			Float64("balance", summary.CurrentBalance).
			Float64("contributions", summary.TotalContributions).
			Int("members", summary.MemberCount).
			Msg("Final group summary")
	}

	return
}

// runSwapSessions drives one user through repeated quote/approve and
// quote/decline round trips
func runSwapSessions(userNum int, sc *simulationClient) (approved, failed int) {
	userID := fmt.Sprintf("swapper_%d", userNum)
	logger := log.With().Str("user_id", userID).Logger()

	for i := 0; i < swapsPerUser; i++ {
		mint := mints[rand.Intn(len(mints))]
		side := sides[rand.Intn(len(sides))]
		amount := float64(rand.Intn(100) + 1)

		requestID, err := sc.quote(userID, mint, side, amount)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to get quote")
			failed++
			continue
		}

		result, err := sc.approve(userID, requestID)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to approve swap")
			failed++
			continue
		}

		if result.Success {
			approved++
			logger.Info().
				Str("signature", result.Signature).
				Float64("amount_received", result.AmountReceived).
				Msg("Swap executed")
		} else {
			failed++
			logger.Warn().Str("error", result.ErrorMessage).Msg("Swap broadcast failed")
		}

		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}

	return
}

// startServer initializes and starts the API server used by the simulation
func startServer() error {
	db, err := database.NewDatabase(databasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(jwtSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	executor := broadcast.NewService()
	quoteBuilder := swap.NewMockQuoteBuilder()
	sessionStore := session.NewStore(session.DefaultTTL)
	swapService := swap.NewService(sessionStore, quoteBuilder, executor)
	ledgerService := ledger.NewService(db)
	governanceService := governance.NewService(db, ledgerService, quoteBuilder, executor, 51)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	swapHandlers := swap.NewGinHandlers(swapService)
	ledgerHandlers := ledger.NewGinHandlers(ledgerService)
	governanceHandlers := governance.NewGinHandlers(governanceService, 24*time.Hour)

	setupRoutes(router, authHandlers, swapHandlers, ledgerHandlers, governanceHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// The rate limiter is deliberately left out so the simulation can push
// realistic load without tripping per-client limits
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	swapHandlers *swap.GinHandlers,
	ledgerHandlers *ledger.GinHandlers,
	governanceHandlers *governance.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/token", authHandlers.GenerateTokenHandler())
		}

		orders := v1.Group("/orders")
		orders.Use(middleware.JWTAuth(jwtSecret))
		{
			orders.POST("/quote", swapHandlers.QuoteHandler())
			orders.POST("/approve", swapHandlers.ApproveHandler())
			orders.POST("/decline", swapHandlers.DeclineHandler())
		}

		groups := v1.Group("/groups")
		groups.Use(middleware.JWTAuth(jwtSecret))
		{
			groups.POST("", ledgerHandlers.CreateGroupHandler())
			groups.POST("/:group_id/join", ledgerHandlers.JoinGroupHandler())
			groups.POST("/:group_id/deposit", ledgerHandlers.DepositHandler())
			groups.GET("/:group_id/summary", ledgerHandlers.GroupSummaryHandler())
			groups.GET("/:group_id/me", ledgerHandlers.MemberSummaryHandler())
			groups.GET("/:group_id/trades", ledgerHandlers.TradesHandler())
			groups.POST("/:group_id/polls", governanceHandlers.CreatePollHandler())
			groups.GET("/:group_id/polls", governanceHandlers.ListPollsHandler())
		}

		polls := v1.Group("/polls")
		polls.Use(middleware.JWTAuth(jwtSecret))
		{
			polls.GET("/:poll_id", governanceHandlers.GetPollHandler())
			polls.POST("/:poll_id/votes", governanceHandlers.CastVoteHandler())
			polls.POST("/:poll_id/cancel", governanceHandlers.CancelPollHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/polls/:poll_id/execute", governanceHandlers.ExecutePollHandler())
		}
	}
}
