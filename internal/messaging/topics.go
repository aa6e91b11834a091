package messaging

// Topic suffixes. Every chain gets its own topics, named "<chain><suffix>".
const (
	SuffixShares       = ".shares"        // stratumd → share processor
	SuffixSolvedShares = ".solved_shares" // stratumd → block submitter (hot path)
	SuffixJobs         = ".jobs"          // job maker → stratumd
)

// Topics names the topics of one chain
type Topics struct {
	Shares       string
	SolvedShares string
	Jobs         string
}

// ChainTopics returns the default topic names for a chain
func ChainTopics(chainName string) Topics {
	return Topics{
		Shares:       chainName + SuffixShares,
		SolvedShares: chainName + SuffixSolvedShares,
		Jobs:         chainName + SuffixJobs,
	}
}
