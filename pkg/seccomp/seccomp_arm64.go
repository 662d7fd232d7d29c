// Copyright 2024 The brld Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

//go:build arm64

package seccomp

import "github.com/openbraille/brld/pkg/abi/linux"

// nativeAuditArch is the audit architecture of this build. Events reporting
// any other architecture are denied before anything else is inspected.
const nativeAuditArch = linux.AUDIT_ARCH_AARCH64
