package utils

import (
	"encoding/json"
	"testing"
)

type testStruct1 struct {
	A1 string      `json:"a1"`
	A2 testStruct2 `json:"b"`
}

type testStruct2 struct {
	B1 string `json:"b1"`
	B2 int64  `json:"b2"`
	B3 bool   `json:"b3"`
}

func TestParseParams(t *testing.T) {
	expectedData := testStruct1{
		A1: "aaa",
		A2: testStruct2{
			B1: "bbb",
			B2: 42,
			B3: true,
		},
	}
	testData := []string{
		"a1=aaa",
		"b.b1=bbb",
		"b.b2=42",
		"b.b3=true",
		"not-a-param",
	}
	actualData := testStruct1{}

	if err := ParseParams("", testData, &actualData); err != nil {
		t.Errorf("ParseParams(): %v", err)
	}

	jsonOut, err := json.Marshal(actualData)
	if err != nil {
		t.Errorf("MarshalActual: %v", err)
	}
	expectedOut, err := json.Marshal(expectedData)
	if err != nil {
		t.Errorf("MarshalExpected: %v", err)
	}
	if string(jsonOut) != string(expectedOut) {
		t.Errorf("mismatch:\n%+v\n%+v", string(jsonOut), string(expectedOut))
	}
}

type testWrapper struct {
	Inner testStruct1 `json:"collector"`
}

func TestParseParamsPrefix(t *testing.T) {
	actualData := testWrapper{}
	testData := []string{
		"a1=xxx",
		"b.b2=7",
	}
	if err := ParseParams("collector", testData, &actualData); err != nil {
		t.Errorf("ParseParams(): %v", err)
	}
	if actualData.Inner.A1 != "xxx" {
		t.Errorf("prefix should namespace under 'collector': %+v", actualData)
	}
	if actualData.Inner.A2.B2 != 7 {
		t.Errorf("nested value not parsed: %+v", actualData)
	}
}
