package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/microaidao/governance/pkg/domain"
	"github.com/microaidao/governance/pkg/governance"
	"github.com/microaidao/governance/pkg/ledger"
)

// Request bodies of the instruction surface, shared with the HTTP
// client. Execution data travels as base64 through the standard []byte
// JSON encoding.

// InitializeDAORequest creates a DAO.
type InitializeDAORequest struct {
	Name                 string                 `json:"name"`
	Description          string                 `json:"description"`
	Authority            string                 `json:"authority"`
	HumanQuorumThreshold uint8                  `json:"human_quorum_threshold"`
	AIQuorumThreshold    uint8                  `json:"ai_quorum_threshold"`
	Compliance           *domain.ComplianceInfo `json:"compliance,omitempty"`
	InitialTreasury      uint64                 `json:"initial_treasury"`
}

type initializeRegistryRequest struct {
	Authority string `json:"authority"`
}

// AddMemberRequest enrolls a member into a DAO's registry.
type AddMemberRequest struct {
	Authority   string `json:"authority"`
	Identity    string `json:"identity"`
	Class       string `json:"class"`
	VotingPower uint64 `json:"voting_power"`
}

// UpdateMemberRequest mutates a member; nil fields stay unchanged.
type UpdateMemberRequest struct {
	Authority   string  `json:"authority"`
	VotingPower *uint64 `json:"voting_power,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// CreateProposalRequest submits a proposal.
type CreateProposalRequest struct {
	Proposer      string `json:"proposer"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Type          string `json:"type"`
	ExecutionData []byte `json:"execution_data,omitempty"`
	VotingPeriod  int64  `json:"voting_period_seconds"`
}

// CastVoteRequest records a vote.
type CastVoteRequest struct {
	Voter     string `json:"voter"`
	Class     string `json:"class"`
	Choice    string `json:"choice"`
	Reasoning string `json:"reasoning,omitempty"`
}

type executeProposalRequest struct {
	Executor string `json:"executor"`
}

// proposalView decorates a proposal with its live quorum progress for
// dashboard consumers.
type proposalView struct {
	*domain.Proposal
	Progress *governance.QuorumProgress `json:"progress,omitempty"`
}

func decode[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("decode request body: %w", err)
	}
	return v, nil
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	resp := domain.ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(resp)
	_ = r
}

func proposalID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

func (s *Server) handleInitializeDAO(w http.ResponseWriter, r *http.Request) {
	req, err := decode[InitializeDAORequest](r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	params := governance.InitializeDAOParams{
		Name:                 req.Name,
		Description:          req.Description,
		Authority:            req.Authority,
		HumanQuorumThreshold: req.HumanQuorumThreshold,
		AIQuorumThreshold:    req.AIQuorumThreshold,
		InitialTreasury:      req.InitialTreasury,
		Compliance:           s.defaults.Compliance,
	}
	if params.InitialTreasury == 0 {
		params.InitialTreasury = s.defaults.InitialTreasury
	}
	if req.Compliance != nil {
		params.Compliance = *req.Compliance
	}

	dao, err := s.svc.InitializeDAO(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, dao)
}

func (s *Server) handleInitializeRegistry(w http.ResponseWriter, r *http.Request) {
	req, err := decode[initializeRegistryRequest](r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	registry, err := s.svc.InitializeRegistry(r.Context(), governance.InitializeRegistryParams{
		DAO:       r.PathValue("dao"),
		Authority: req.Authority,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, registry)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	req, err := decode[AddMemberRequest](r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	class, err := domain.ParseVoterClass(req.Class)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	member, err := s.svc.AddMember(r.Context(), governance.AddMemberParams{
		DAO:         r.PathValue("dao"),
		Authority:   req.Authority,
		Identity:    req.Identity,
		Class:       class,
		VotingPower: req.VotingPower,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, member)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	req, err := decode[UpdateMemberRequest](r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	member, err := s.svc.UpdateMember(r.Context(), governance.UpdateMemberParams{
		DAO:         r.PathValue("dao"),
		Authority:   req.Authority,
		Identity:    r.PathValue("identity"),
		VotingPower: req.VotingPower,
		IsActive:    req.IsActive,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, member)
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	req, err := decode[CreateProposalRequest](r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	ptype, err := domain.ParseProposalType(req.Type)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	proposal, err := s.svc.CreateProposal(r.Context(), governance.CreateProposalParams{
		DAO:           r.PathValue("dao"),
		Proposer:      req.Proposer,
		Title:         req.Title,
		Description:   req.Description,
		Type:          ptype,
		ExecutionData: req.ExecutionData,
		VotingPeriod:  time.Duration(req.VotingPeriod) * time.Second,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, proposal)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	req, err := decode[CastVoteRequest](r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	class, err := domain.ParseVoterClass(req.Class)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	choice, err := domain.ParseVoteChoice(req.Choice)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	result, err := s.svc.CastVote(r.Context(), governance.CastVoteParams{
		DAO:        r.PathValue("dao"),
		ProposalID: id,
		Voter:      req.Voter,
		Class:      class,
		Choice:     choice,
		Reasoning:  req.Reasoning,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleExecuteProposal(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	req, err := decode[executeProposalRequest](r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	proposal, err := s.svc.ExecuteProposal(r.Context(), governance.ExecuteProposalParams{
		DAO:        r.PathValue("dao"),
		ProposalID: id,
		Executor:   req.Executor,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proposal)
}

func (s *Server) handleListDAOs(w http.ResponseWriter, r *http.Request) {
	var daos []*domain.DAO
	err := s.svc.Ledger().View(r.Context(), func(tx ledger.ReadTxn) error {
		var err error
		daos, err = tx.ListDAOs()
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, daos)
}

func (s *Server) handleGetDAO(w http.ResponseWriter, r *http.Request) {
	var dao *domain.DAO
	err := s.svc.Ledger().View(r.Context(), func(tx ledger.ReadTxn) error {
		var err error
		dao, err = tx.GetDAO(r.PathValue("dao"))
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dao)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	var members []*domain.Member
	err := s.svc.Ledger().View(r.Context(), func(tx ledger.ReadTxn) error {
		var err error
		members, err = tx.ListMembers(r.PathValue("dao"))
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	var proposals []*domain.Proposal
	err := s.svc.Ledger().View(r.Context(), func(tx ledger.ReadTxn) error {
		var err error
		proposals, err = tx.ListProposals(r.PathValue("dao"))
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proposals)
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	dao := r.PathValue("dao")
	var proposal *domain.Proposal
	err = s.svc.Ledger().View(r.Context(), func(tx ledger.ReadTxn) error {
		var err error
		proposal, err = tx.GetProposal(dao, id)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	progress, err := s.svc.ProposalProgress(r.Context(), dao, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proposalView{Proposal: proposal, Progress: progress})
}

func (s *Server) handleListVotes(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	var votes []*domain.VoteRecord
	err = s.svc.Ledger().View(r.Context(), func(tx ledger.ReadTxn) error {
		var err error
		votes, err = tx.ListVotes(r.PathValue("dao"), id)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, votes)
}

func (s *Server) handleGetTreasury(w http.ResponseWriter, r *http.Request) {
	var account *domain.TreasuryAccount
	err := s.svc.Ledger().View(r.Context(), func(tx ledger.ReadTxn) error {
		var err error
		account, err = tx.GetTreasury(r.PathValue("dao"), r.PathValue("holder"))
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}
