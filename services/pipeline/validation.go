// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerTagNames sync.Once

// useJSONFieldNames makes validator errors report "nodes[0].id" instead of
// "Nodes[0].ID". It configures gin's shared validator, so it runs once.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
	})
}

// DecodePipeline reads and validates a pipeline document.
//
// # Description
//
// Applies exactly the decoding and binding rules used by
// POST /pipelines/parse, so the CLI and the HTTP API accept the same
// documents. Default values are filled in on success.
//
// # Inputs
//
//   - r: JSON document. Read to EOF.
//
// # Outputs
//
//   - *PipelineRequest: The decoded request.
//   - *RequestError: KindSchema with CodeInvalidRequest on any failure.
func DecodePipeline(r io.Reader) (*PipelineRequest, *RequestError) {
	useJSONFieldNames()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, schemaError(CodeInvalidRequest, ErrInvalidPipeline, "read body: "+err.Error())
	}

	var req PipelineRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		return nil, bindError(err)
	}
	req.applyDefaults()
	return &req, nil
}

// bindError converts a decode or validation failure into a schema error.
func bindError(err error) *RequestError {
	return schemaError(CodeInvalidRequest, ErrInvalidPipeline, describeBindError(err))
}

// describeBindError renders err as "path: problem" lines joined by "; ".
func describeBindError(err error) string {
	var (
		verrs     validator.ValidationErrors
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.Is(err, io.EOF):
		return "request body is empty"

	case errors.Is(err, io.ErrUnexpectedEOF):
		return "malformed JSON: unexpected end of input"

	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("malformed JSON at offset %d", syntaxErr.Offset)

	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return fmt.Sprintf("%s: expected %s, got %s", field, typeErr.Type, typeErr.Value)

	case errors.As(err, &verrs):
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describeFieldError(fe))
		}
		return strings.Join(msgs, "; ")

	default:
		return err.Error()
	}
}

func describeFieldError(fe validator.FieldError) string {
	// Namespace is "PipelineRequest.nodes[0].id"; drop the root type.
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return path + ": field required"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s: failed %s=%s", path, fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s: failed %s", path, fe.Tag())
	}
}
