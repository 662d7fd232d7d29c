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

package linux

// Virtual console ioctls, from include/uapi/linux/kd.h. The daemon uses
// these to read keyboard mode and to beep the console speaker; x/sys/unix
// does not export them.
const (
	KIOCSOUND = 0x4b2f
	KDMKTONE  = 0x4b30

	KDGETMODE = 0x4b3b

	KDGKBMODE = 0x4b44
	KDSKBMODE = 0x4b45

	KDGKBLED = 0x4b64
	KDSKBLED = 0x4b65
)

// TIOCL_* console control codes, from include/uapi/linux/tiocl.h, used with
// the TIOCLINUX ioctl for screen-content access.
const (
	TIOCL_GETSHIFTSTATE  = 6
	TIOCL_GETMOUSEREPORT = 7
)
