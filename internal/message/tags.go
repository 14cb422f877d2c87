package message

// Tag names a message on the worker protocol.
type Tag string

const (
	TagLocalExecute          Tag = "LOCAL_EXECUTE"
	TagOnChainExecute        Tag = "ON_CHAIN_EXECUTE"
	TagEstimateExecutionFee  Tag = "ESTIMATE_EXECUTION_FEE"
	TagEstimateDeploymentFee Tag = "ESTIMATE_DEPLOYMENT_FEE"
	TagTransfer              Tag = "TRANSFER"
	TagDeploy                Tag = "DEPLOY"
	TagSplit                 Tag = "SPLIT"
	TagJoin                  Tag = "JOIN"
	TagNewPrivateKey         Tag = "NEW_PRIVATE_KEY"
)

const (
	TagOfflineExecutionCompleted Tag = "OFFLINE_EXECUTION_COMPLETED"
	TagExecutionTransaction      Tag = "EXECUTION_TRANSACTION_COMPLETED"
	TagExecutionFeeEstimation    Tag = "EXECUTION_FEE_ESTIMATION_COMPLETED"
	TagDeploymentFeeEstimation   Tag = "DEPLOYMENT_FEE_ESTIMATION_COMPLETED"
	TagTransferTransaction       Tag = "TRANSFER_TRANSACTION_COMPLETED"
	TagDeployTransaction         Tag = "DEPLOY_TRANSACTION_COMPLETED"
	TagSplitTransaction          Tag = "SPLIT_TRANSACTION_COMPLETED"
	TagJoinTransaction           Tag = "JOIN_TRANSACTION_COMPLETED"
	TagPrivateKeyGenerated       Tag = "PRIVATE_KEY_GENERATED"
	TagError                     Tag = "ERROR"
	TagWorkerReady               Tag = "WORKER_READY"
)

var successTags = map[Tag]Tag{
	TagLocalExecute:          TagOfflineExecutionCompleted,
	TagOnChainExecute:        TagExecutionTransaction,
	TagEstimateExecutionFee:  TagExecutionFeeEstimation,
	TagEstimateDeploymentFee: TagDeploymentFeeEstimation,
	TagTransfer:              TagTransferTransaction,
	TagDeploy:                TagDeployTransaction,
	TagSplit:                 TagSplitTransaction,
	TagJoin:                  TagJoinTransaction,
	TagNewPrivateKey:         TagPrivateKeyGenerated,
}

// SuccessTag returns the response tag a request tag completes with.
func SuccessTag(request Tag) (Tag, bool) {
	t, ok := successTags[request]
	return t, ok
}

// RequestTags lists request tags in protocol order.
func RequestTags() []Tag {
	return []Tag{
		TagLocalExecute,
		TagOnChainExecute,
		TagEstimateExecutionFee,
		TagEstimateDeploymentFee,
		TagTransfer,
		TagDeploy,
		TagSplit,
		TagJoin,
		TagNewPrivateKey,
	}
}
