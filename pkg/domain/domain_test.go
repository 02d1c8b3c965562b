package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseEnums(t *testing.T) {
	class, err := ParseVoterClass("ai")
	require.NoError(t, err)
	assert.Equal(t, ClassAI, class)
	_, err = ParseVoterClass("robot")
	assert.Error(t, err)

	choice, err := ParseVoteChoice("abstain")
	require.NoError(t, err)
	assert.Equal(t, ChoiceAbstain, choice)
	_, err = ParseVoteChoice("yes")
	assert.Error(t, err)

	ptype, err := ParseProposalType("treasury")
	require.NoError(t, err)
	assert.Equal(t, ProposalTreasury, ptype)
	_, err = ParseProposalType("upgrade")
	assert.Error(t, err)
}

func TestStatusRankOrdering(t *testing.T) {
	assert.Less(t, StatusActive.Rank(), StatusSucceeded.Rank())
	assert.Less(t, StatusSucceeded.Rank(), StatusExecuted.Rank())
	assert.Less(t, StatusExecuted.Rank(), StatusFailed.Rank())
	assert.Equal(t, StatusFailed.Rank(), StatusCancelled.Rank())
	assert.Equal(t, -1, ProposalStatus("bogus").Rank())

	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusSucceeded.Terminal())
	assert.True(t, StatusExecuted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestCompositeKeysAreDistinct(t *testing.T) {
	// Seeds chosen so naive concatenation would collide; the separator
	// keeps the keys apart.
	assert.NotEqual(t, MemberKey("ab", "c"), MemberKey("a", "bc"))
	assert.NotEqual(t, TreasuryKey("ab", "c"), TreasuryKey("a", "bc"))
	assert.NotEqual(t, DAOKey("x"), RegistryKey("x"))

	// Proposal ids are zero padded so lexical order is numeric order.
	assert.Less(t, ProposalKey("dao", 9), ProposalKey("dao", 10))
	assert.Less(t, VoteKey("dao", 2, "zed"), VoteKey("dao", 10, "amy"))
}

func TestKeyPrefixesScopeTheirRecords(t *testing.T) {
	assert.True(t, strings.HasPrefix(ProposalKey("dao", 7), ProposalPrefix("dao")))
	assert.False(t, strings.HasPrefix(ProposalKey("dao2", 7), ProposalPrefix("dao")))

	assert.True(t, strings.HasPrefix(VoteKey("dao", 7, "bob"), VotePrefix("dao", 7)))
	assert.False(t, strings.HasPrefix(VoteKey("dao", 8, "bob"), VotePrefix("dao", 7)))

	assert.True(t, strings.HasPrefix(MemberKey("dao", "bob"), MemberPrefix("dao")))
	assert.False(t, strings.HasPrefix(MemberKey("dao2", "bob"), MemberPrefix("dao")))
}

func TestValidKeySeed(t *testing.T) {
	assert.True(t, ValidKeySeed("alice"))
	assert.False(t, ValidKeySeed(""))
	assert.False(t, ValidKeySeed("a\x00b"))
}

func TestKeyInjectivity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.StringMatching(`[a-z0-9._-]{1,32}`)
		dao1 := seed.Draw(t, "dao1")
		dao2 := seed.Draw(t, "dao2")
		id1 := rapid.Uint64().Draw(t, "id1")
		id2 := rapid.Uint64().Draw(t, "id2")
		voter1 := seed.Draw(t, "voter1")
		voter2 := seed.Draw(t, "voter2")

		same := dao1 == dao2 && id1 == id2 && voter1 == voter2
		assert.Equal(t, same, VoteKey(dao1, id1, voter1) == VoteKey(dao2, id2, voter2))
	})
}

func TestErrorCodeStability(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrInvalidQuorumThreshold, "INVALID_QUORUM_THRESHOLD"},
		{ErrAlreadyVoted, "ALREADY_VOTED"},
		{ErrVotingPeriodEnded, "VOTING_PERIOD_ENDED"},
		{ErrProposalNotActive, "PROPOSAL_NOT_ACTIVE"},
		{ErrProposalAlreadyExecuted, "PROPOSAL_ALREADY_EXECUTED"},
		{ErrNotAuthorized, "NOT_AUTHORIZED"},
		{ErrVersionConflict, "VERSION_CONFLICT"},
		{ErrNotFound, "NOT_FOUND"},
		{errors.New("disk on fire"), "INTERNAL"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ErrorCode(tt.err))
	}

	// Wrapped taxonomy errors keep their code.
	wrapped := fmt.Errorf("proposal 3: %w", ErrAlreadyVoted)
	assert.Equal(t, "ALREADY_VOTED", ErrorCode(wrapped))
}

func TestGovernanceErrorUnwrap(t *testing.T) {
	gerr := &GovernanceError{
		Err:     ErrMemberNotFound,
		Code:    ErrorCode(ErrMemberNotFound),
		Message: "member bob not found in dao",
	}
	assert.Equal(t, "member bob not found in dao", gerr.Error())
	assert.ErrorIs(t, gerr, ErrMemberNotFound)
	assert.Equal(t, "MEMBER_NOT_FOUND", ErrorCode(gerr))

	bare := &GovernanceError{Err: ErrNotFound}
	assert.Equal(t, ErrNotFound.Error(), bare.Error())
}
