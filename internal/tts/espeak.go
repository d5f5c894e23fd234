// Package tts speaks text aloud through espeak-ng.
package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <string.h>
#include <espeak-ng/speak_lib.h>

static int
tts_init(int rate)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	espeak_SetParameter(espeakRATE, rate, 0);

	return 0;
}

static int
tts_set_voice(const char *lang)
{
	espeak_VOICE specs;
	memset(&specs, 0, sizeof(specs));
	specs.languages = (char *)lang;

	return espeak_SetVoiceByProperties(&specs) == EE_OK ? 0 : -1;
}

static int
tts_say(const char *text)
{
	if (!text)
	{ return -1; }

	if (espeak_Synth(text, strlen(text) + 1, 0, 0, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -1; }

	espeak_Synchronize();

	return 0;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// Engine wraps espeak-ng. espeak holds global state, so one Engine per
// process and all calls are serialized through the mutex.
type Engine struct {
	mu   sync.Mutex
	rate int
}

// NewEngine initializes espeak-ng with the given voice language ("en",
// "ru", ...) and speaking rate in words per minute.
func NewEngine(voice string, rate int) (*Engine, error) {
	if voice == "" {
		voice = "en"
	}
	if rate < 80 {
		rate = 80
	}
	if rate > 500 {
		rate = 500
	}

	if rc := C.tts_init(C.int(rate)); rc != 0 {
		return nil, errors.New("espeak initialize failed")
	}

	cv := C.CString(voice)
	defer C.free(unsafe.Pointer(cv))
	if rc := C.tts_set_voice(cv); rc != 0 {
		C.espeak_Terminate()
		return nil, fmt.Errorf("espeak voice %q not available", voice)
	}

	return &Engine{rate: rate}, nil
}

// Speak blocks until playback finishes.
func (e *Engine) Speak(text string) error {
	if text == "" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	if rc := C.tts_say(ctext); rc != 0 {
		return fmt.Errorf("espeak synth failed: %d", int(rc))
	}
	return nil
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	C.espeak_Terminate()
}
