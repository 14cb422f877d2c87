package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/danmuck/provectl/internal/message"
)

// requestFields holds k=v pairs from the command line; input may repeat.
// program=@path reads the program source from a file.
type requestFields struct {
	values map[string]string
	inputs []string
}

var knownFields = map[string]bool{
	"program": true, "program_ref": true, "function": true, "input": true,
	"private_key": true, "host": true, "fee": true, "fee_record": true,
	"amount": true, "recipient": true, "transfer_kind": true, "amount_record": true,
	"split_amount": true, "record": true, "record_one": true, "record_two": true,
}

func parseFields(pairs []string) (requestFields, error) {
	out := requestFields{values: make(map[string]string)}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return requestFields{}, fmt.Errorf("field %q: want key=value", pair)
		}
		if !knownFields[k] {
			return requestFields{}, fmt.Errorf("field %q: unknown key (known: %s)", k, strings.Join(fieldNames(), ", "))
		}
		if k == "program" && strings.HasPrefix(v, "@") {
			src, err := os.ReadFile(strings.TrimPrefix(v, "@"))
			if err != nil {
				return requestFields{}, fmt.Errorf("field program: %w", err)
			}
			v = string(src)
		}
		if k == "input" {
			out.inputs = append(out.inputs, v)
			continue
		}
		out.values[k] = v
	}
	return out, nil
}

func fieldNames() []string {
	names := make([]string, 0, len(knownFields))
	for k := range knownFields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// buildRequest maps a request tag and its fields to a message variant.
// Field presence is checked by the worker, not here.
func buildRequest(tag string, f requestFields) (message.Request, error) {
	v := f.values
	switch message.Tag(strings.ToUpper(strings.TrimSpace(tag))) {
	case message.TagLocalExecute:
		return message.LocalExecute{Program: v["program"], Function: v["function"], Inputs: f.inputs, PrivateKey: v["private_key"]}, nil
	case message.TagOnChainExecute:
		return message.OnChainExecute{
			ProgramRef: v["program_ref"], Function: v["function"], Inputs: f.inputs,
			PrivateKey: v["private_key"], Fee: v["fee"], FeeRecord: v["fee_record"], Host: v["host"],
		}, nil
	case message.TagEstimateExecutionFee:
		return message.EstimateExecutionFee{ProgramRef: v["program_ref"], Function: v["function"], Inputs: f.inputs, Host: v["host"]}, nil
	case message.TagEstimateDeploymentFee:
		return message.EstimateDeploymentFee{Program: v["program"], Host: v["host"]}, nil
	case message.TagTransfer:
		return message.Transfer{
			PrivateKey: v["private_key"], Amount: v["amount"], Recipient: v["recipient"],
			TransferKind: v["transfer_kind"], AmountRecord: v["amount_record"],
			Fee: v["fee"], FeeRecord: v["fee_record"], Host: v["host"],
		}, nil
	case message.TagDeploy:
		return message.Deploy{Program: v["program"], PrivateKey: v["private_key"], Fee: v["fee"], FeeRecord: v["fee_record"], Host: v["host"]}, nil
	case message.TagSplit:
		return message.Split{SplitAmount: v["split_amount"], Record: v["record"], PrivateKey: v["private_key"], Host: v["host"]}, nil
	case message.TagJoin:
		return message.Join{
			RecordOne: v["record_one"], RecordTwo: v["record_two"],
			Fee: v["fee"], FeeRecord: v["fee_record"], PrivateKey: v["private_key"], Host: v["host"],
		}, nil
	case message.TagNewPrivateKey:
		return message.NewPrivateKey{}, nil
	default:
		return nil, fmt.Errorf("unknown request tag %q", tag)
	}
}

// renderResponse flattens a reply for JSON output.
func renderResponse(resp message.Response) map[string]any {
	out := map[string]any{"tag": string(resp.Tag())}
	switch r := resp.(type) {
	case message.ExecutionResult:
		out["outputs"] = r.Outputs
		if r.Execution != "" {
			out["execution"] = r.Execution
		}
	case message.TransactionResult:
		out["transaction_id"] = r.TransactionID
		out["transaction"] = r.Transaction
	case message.FeeEstimate:
		out["credits"] = r.Credits
		out["microcredits"] = r.Microcredits
	case message.PrivateKeyResult:
		out["private_key"] = r.PrivateKey
		out["address"] = r.Address
	case message.Failure:
		out["error"] = r.Message
	case message.Ready:
		out["worker_id"] = r.WorkerID
	}
	return out
}
