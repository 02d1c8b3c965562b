package domain

import (
	"fmt"
	"strings"
)

// TreasuryHolder is the holder slot of a DAO's own treasury account.
const TreasuryHolder = "treasury"

// Records are addressed by deterministic composite keys: a namespace plus
// the record's stable seed fields. Creating a record whose key already
// exists is a collision and must be rejected, never overwritten. The 0x00
// separator keeps seed fields from gluing into a colliding string.

const keySep = "\x00"

func DAOKey(name string) string {
	return "dao" + keySep + name
}

func RegistryKey(dao string) string {
	return "registry" + keySep + dao
}

func MemberKey(dao, identity string) string {
	return "member" + keySep + dao + keySep + identity
}

func ProposalKey(dao string, id uint64) string {
	return fmt.Sprintf("proposal%s%s%s%020d", keySep, dao, keySep, id)
}

func VoteKey(dao string, proposalID uint64, voter string) string {
	return fmt.Sprintf("vote%s%s%s%020d%s%s", keySep, dao, keySep, proposalID, keySep, voter)
}

func TreasuryKey(dao, holder string) string {
	return "treasury" + keySep + dao + keySep + holder
}

// VotePrefix addresses every vote record of one proposal.
func VotePrefix(dao string, proposalID uint64) string {
	return fmt.Sprintf("vote%s%s%s%020d%s", keySep, dao, keySep, proposalID, keySep)
}

// ProposalPrefix addresses every proposal of one DAO.
func ProposalPrefix(dao string) string {
	return "proposal" + keySep + dao + keySep
}

// MemberPrefix addresses every member of one DAO's registry.
func MemberPrefix(dao string) string {
	return "member" + keySep + dao + keySep
}

// ValidKeySeed rejects seed fields that would corrupt composite keys.
func ValidKeySeed(s string) bool {
	return s != "" && !strings.Contains(s, keySep)
}
