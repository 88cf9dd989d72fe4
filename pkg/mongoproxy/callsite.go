// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mongoproxy

import "github.com/tidwall/gjson"

// extractCallingFunction pulls callingFunction out of a $comment value that
// carries a JSON object, without standing up a full decoder for what is
// normally a single optional field.
func extractCallingFunction(comment string) string {
	result := gjson.Get(comment, "callingFunction")
	if !result.Exists() || result.Type != gjson.String {
		return ""
	}
	return result.String()
}
