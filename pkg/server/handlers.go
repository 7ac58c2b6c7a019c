package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/consensuslabs/vaultscope/pkg/price"
	"github.com/consensuslabs/vaultscope/pkg/token"
	"github.com/consensuslabs/vaultscope/pkg/valuation"
	"github.com/consensuslabs/vaultscope/pkg/vault"
)

// vaultResponse renders one vault. Amounts are decimal strings in whole token
// units; price fields are null when no quote is available, never zero, and
// unlockAt is null when the chain read failed, since zero means "no lock".
type vaultResponse struct {
	Address              string   `json:"address"`
	DepositToken         string   `json:"depositToken"`
	Name                 string   `json:"name"`
	TokenSymbol          string   `json:"tokenSymbol"`
	TokenDecimals        uint8    `json:"tokenDecimals"`
	TotalPrincipal       string   `json:"totalPrincipal"`
	TotalVoteWeight      string   `json:"totalVoteWeight"`
	TotalDonations       string   `json:"totalDonations"`
	ContractTokenBalance string   `json:"contractTokenBalance"`
	ConsensusReached     bool     `json:"consensusReached"`
	UnlockAt             *uint64  `json:"unlockAt"`
	ParticipantCount     uint64   `json:"participantCount"`
	State                string   `json:"state"`
	MarketValue          string   `json:"marketValue"`
	PriceUSD             *float64 `json:"priceUsd"`
	Change24h            *float64 `json:"change24h"`
}

type positionResponse struct {
	Vault              string            `json:"vault"`
	User               string            `json:"user"`
	Principal          string            `json:"principal"`
	RewardDebt         string            `json:"rewardDebt"`
	PendingReward      string            `json:"pendingReward"`
	HasVoted           bool              `json:"hasVoted"`
	Stale              bool              `json:"stale"`
	PrincipalValue     string            `json:"principalValue"`
	PendingRewardValue string            `json:"pendingRewardValue"`
	Eligibility        vault.Eligibility `json:"eligibility"`
}

type quoteResponse struct {
	Token     string  `json:"token"`
	PriceUSD  float64 `json:"priceUsd"`
	Change24h float64 `json:"change24h"`
	FetchedAt string  `json:"fetchedAt"`
}

func (s *Server) handleListVaults(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.View.Current()
	if snap == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}

	now := time.Now()
	out := make([]vaultResponse, 0, len(snap.Vaults))
	for i := range snap.Vaults {
		out = append(out, s.renderVault(&snap.Vaults[i], snap.Quotes, now))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid vault address")
		return
	}

	snap := s.cfg.View.Current()
	if snap == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no snapshot yet")
		return
	}
	v, found := s.cfg.View.Vault(addr)
	if !found {
		s.writeError(w, http.StatusNotFound, "unknown vault")
		return
	}
	s.writeJSON(w, http.StatusOK, s.renderVault(&v, snap.Quotes, time.Now()))
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	vaultAddr, ok := parseAddress(chi.URLParam(r, "address"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid vault address")
		return
	}
	userAddr, ok := parseAddress(chi.URLParam(r, "user"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid user address")
		return
	}

	v, found := s.cfg.View.Vault(vaultAddr)
	if !found {
		s.writeError(w, http.StatusNotFound, "unknown vault")
		return
	}

	pos, err := s.cfg.Source.UserPosition(r.Context(), vaultAddr, userAddr)
	if err != nil {
		s.log.Warn("server: user position read failed",
			"vault", vaultAddr.Hex(), "user", userAddr.Hex(), "error", err)
		s.writeError(w, http.StatusBadGateway, "user position unavailable")
		return
	}

	quote, _ := s.cfg.View.QuoteFor(v.DepositToken)
	s.writeJSON(w, http.StatusOK, positionResponse{
		Vault:              vaultAddr.Hex(),
		User:               userAddr.Hex(),
		Principal:          token.FormatAmount(pos.Principal, v.TokenDecimals),
		RewardDebt:         token.FormatAmount(pos.RewardDebt, v.TokenDecimals),
		PendingReward:      token.FormatAmount(pos.PendingReward, v.TokenDecimals),
		HasVoted:           pos.HasVoted,
		Stale:              pos.Stale,
		PrincipalValue:     valuation.MarketValueAmount(pos.Principal, v.TokenDecimals, quote),
		PendingRewardValue: valuation.MarketValueAmount(pos.PendingReward, v.TokenDecimals, quote),
		Eligibility:        vault.EligibilityOf(&v, pos, time.Now()),
	})
}

func (s *Server) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("tokens")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "tokens query parameter is required")
		return
	}

	var addrs []common.Address
	for _, part := range strings.Split(raw, ",") {
		addr, ok := parseAddress(strings.TrimSpace(part))
		if !ok {
			s.writeError(w, http.StatusBadRequest, "invalid token address: "+part)
			return
		}
		addrs = append(addrs, addr)
	}

	quotes := s.cfg.Quotes.GetPrices(r.Context(), addrs)
	out := make(map[string]*quoteResponse, len(addrs))
	for _, addr := range addrs {
		if q, ok := quotes[addr]; ok {
			out[addr.Hex()] = &quoteResponse{
				Token:     addr.Hex(),
				PriceUSD:  q.PriceUSD,
				Change24h: q.Change24h,
				FetchedAt: q.FetchedAt.UTC().Format(time.RFC3339Nano),
			}
		} else {
			out[addr.Hex()] = nil
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handleRefresh re-reads chain state on demand. The periodic loop only
// re-reads prices, so this is how consensusReached and unlockAt get picked up
// without a restart.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.View.Refresh(r.Context()); err != nil {
		s.log.Warn("server: manual refresh failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "refresh failed")
		return
	}
	snap := s.cfg.View.Current()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"cycle":       snap.Cycle,
		"refreshedAt": snap.RefreshedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) renderVault(v *vault.Vault, quotes map[common.Address]*price.Quote, now time.Time) vaultResponse {
	quote := quotes[v.DepositToken]

	resp := vaultResponse{
		Address:              v.Address.Hex(),
		DepositToken:         v.DepositToken.Hex(),
		Name:                 v.DisplayName(),
		TokenSymbol:          v.TokenSymbol,
		TokenDecimals:        v.TokenDecimals,
		TotalPrincipal:       token.FormatAmount(v.TotalPrincipal, v.TokenDecimals),
		TotalVoteWeight:      token.FormatAmount(v.TotalVoteWeight, v.TokenDecimals),
		TotalDonations:       token.FormatAmount(v.TotalDonations, v.TokenDecimals),
		ContractTokenBalance: token.FormatAmount(v.ContractTokenBalance, v.TokenDecimals),
		ConsensusReached:     v.ConsensusReached,
		ParticipantCount:     v.ParticipantCount,
		State:                string(vault.StateOf(v, now)),
		MarketValue:          valuation.MarketValueAmount(v.ContractTokenBalance, v.TokenDecimals, quote),
	}
	if !v.UnlockAtUnavailable {
		unlockAt := v.UnlockAt
		resp.UnlockAt = &unlockAt
	}
	if quote != nil {
		resp.PriceUSD = &quote.PriceUSD
		resp.Change24h = &quote.Change24h
	}
	return resp
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
