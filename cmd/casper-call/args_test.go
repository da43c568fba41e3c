package main

import (
	"reflect"
	"testing"

	"github.com/go-capsicum/go-capsicum/casper/message"
)

func TestParseArgs(t *testing.T) {
	got, err := parseArgs([]string{
		"name=root",
		"uid:int=0x10",
		"verbose:bool=true",
		"blob:binary=00ff",
		"cmds:[]string=getpwuid",
		"cmds:[]string=getpwnam",
		"uids:[]int=1",
		"empty:string=",
	})
	if err != nil {
		t.Fatalf("parseArgs(): %v", err)
	}
	want := message.New().
		SetString("name", "root").
		SetInt("uid", 16).
		SetBool("verbose", true).
		SetBinary("blob", []byte{0, 0xff}).
		SetStrings("cmds", []string{"getpwuid", "getpwnam"}).
		SetInts("uids", []int64{1}).
		SetString("empty", "")
	if !got.Equal(want) {
		t.Errorf("parseArgs() = %v, want %v", got, want)
	}
}

func TestParseArgsErrors(t *testing.T) {
	for _, arg := range []string{
		"novalue",
		"=value",
		":int=1",
		"n:int=one",
		"b:bool=maybe",
		"x:binary=xyz",
		"f:float=1.5",
	} {
		if _, err := parseArgs([]string{arg}); err == nil {
			t.Errorf("parseArgs(%q) succeeded, want error", arg)
		}
	}
}

func TestPlain(t *testing.T) {
	m := message.New().
		SetInt("error", 0).
		SetBinary("oldp", []byte("hi")).
		SetMessage("limits", message.New().SetStrings("cmds", []string{"a"})).
		SetMessages("list", []*message.Message{message.New().SetBool("ok", true)})
	want := map[string]any{
		"error":  int64(0),
		"oldp":   "6869",
		"limits": map[string]any{"cmds": []string{"a"}},
		"list":   []map[string]any{{"ok": true}},
	}
	if got := plain(m); !reflect.DeepEqual(got, want) {
		t.Errorf("plain() = %v, want %v", got, want)
	}
}
