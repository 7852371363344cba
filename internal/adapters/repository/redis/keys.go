package redis

const (
	keyPrefix  = "servervote:"
	rankingKey = keyPrefix + "servers:ranking"
)

func serverKey(id string) string {
	return keyPrefix + "server:" + id
}

func votesKey(targetID string) string {
	return keyPrefix + "votes:" + targetID
}

// lastVoteKey holds the latest accepted vote of one (target, identity) pair.
// It is the key watched by the check-and-append transaction.
func lastVoteKey(targetID, voterIdentity string) string {
	return keyPrefix + "last:" + targetID + ":" + voterIdentity
}
